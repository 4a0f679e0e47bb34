package flow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/engageflow/pkg/validator"
)

// Question answer validations.
const (
	ValidateText   = "text"
	ValidateNumber = "number"
	ValidateEmail  = "email"
	ValidatePhone  = "phone"
	ValidateDate   = "date"
	ValidateRegex  = "regex"
)

const (
	defaultMaxAttempts    = 3
	defaultInvalidMessage = "Sorry, I did not understand that. Please try again."
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2006/01/02"}

// QuestionConfig configures a question node.
type QuestionConfig struct {
	Text         string `mapstructure:"text"`
	Variable     string `mapstructure:"variable"`
	Validation   string `mapstructure:"validation"`
	Pattern      string `mapstructure:"pattern"`
	ErrorMessage string `mapstructure:"errorMessage"`
	MaxAttempts  int    `mapstructure:"maxAttempts"`

	pattern *regexp.Regexp
}

func (c *QuestionConfig) validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if strings.TrimSpace(c.Variable) == "" {
		return fmt.Errorf("variable is required")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	switch c.Validation {
	case "":
		c.Validation = ValidateText
	case ValidateText, ValidateNumber, ValidateEmail, ValidatePhone, ValidateDate:
	case ValidateRegex:
		re, err := regexp.Compile(c.Pattern)
		if err != nil || c.Pattern == "" {
			return fmt.Errorf("regex validation requires a valid pattern")
		}
		c.pattern = re
	default:
		return fmt.Errorf("unknown validation %q", c.Validation)
	}
	return nil
}

// Check validates an answer and returns the value to store.
func (c *QuestionConfig) Check(answer string) (any, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, false
	}
	switch c.Validation {
	case ValidateNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(answer, ",", "."), 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case ValidateEmail:
		if validator.ValidateVar(answer, "email") != nil {
			return nil, false
		}
		return strings.ToLower(answer), true
	case ValidatePhone:
		if !validator.IsPhone(answer) {
			return nil, false
		}
		return validator.NormalizePhone(answer), true
	case ValidateDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, answer); err == nil {
				return t.Format("2006-01-02"), true
			}
		}
		return nil, false
	case ValidateRegex:
		if c.pattern == nil || !c.pattern.MatchString(answer) {
			return nil, false
		}
	}
	return answer, true
}

type questionHandler struct{}

func (questionHandler) Type() string { return TypeQuestion }

func (questionHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[QuestionConfig](data)
}

func (h questionHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[QuestionConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if err := run.SendText(ctx, cfg.Text); err != nil {
		return Outcome{}, err
	}
	run.Execution.Attempts = 0
	return Outcome{Wait: true}, nil
}

func (h questionHandler) Resume(ctx context.Context, run *Run, node *Node, in Input) (Outcome, error) {
	cfg, err := configOf[QuestionConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}

	answer := in.Text
	if strings.TrimSpace(answer) == "" && cfg.Validation == ValidateText {
		answer = in.MediaURL
	}
	if value, ok := cfg.Check(answer); ok {
		run.Vars.Set(cfg.Variable, value)
		run.Execution.Attempts = 0
		return Outcome{Detail: "answered"}, nil
	}
	return retryOrGiveUp(ctx, run, node, cfg.ErrorMessage, cfg.MaxAttempts)
}

// retryOrGiveUp re-prompts until maxAttempts invalid answers, then follows the
// invalid edge, or ends the execution when the graph has none.
func retryOrGiveUp(ctx context.Context, run *Run, node *Node, message string, maxAttempts int) (Outcome, error) {
	run.Execution.Attempts++
	if run.Execution.Attempts < maxAttempts {
		if strings.TrimSpace(message) == "" {
			message = defaultInvalidMessage
		}
		if err := run.SendText(ctx, message); err != nil {
			return Outcome{}, err
		}
		return Outcome{Wait: true, Detail: fmt.Sprintf("invalid answer %d/%d", run.Execution.Attempts, maxAttempts)}, nil
	}

	run.Execution.Attempts = 0
	if run.Graph.HasEdge(node.ID, HandleInvalid) {
		return Outcome{Handle: HandleInvalid, Detail: "attempts exhausted"}, nil
	}
	return Outcome{End: EndInvalidInput, Detail: "attempts exhausted"}, nil
}

// MenuOption is one numbered choice of a menu node.
type MenuOption struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Value string `mapstructure:"value"`
}

// MenuConfig configures a menu node.
type MenuConfig struct {
	Text           string       `mapstructure:"text"`
	Options        []MenuOption `mapstructure:"options"`
	Variable       string       `mapstructure:"variable"`
	InvalidMessage string       `mapstructure:"invalidMessage"`
	MaxAttempts    int          `mapstructure:"maxAttempts"`
}

func (c *MenuConfig) validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if len(c.Options) == 0 {
		return fmt.Errorf("at least one option is required")
	}
	handles := make(map[string]struct{}, len(c.Options))
	for i := range c.Options {
		opt := &c.Options[i]
		if strings.TrimSpace(opt.Label) == "" {
			return fmt.Errorf("option %d: label is required", i+1)
		}
		if opt.ID == "" {
			opt.ID = strconv.Itoa(i + 1)
		}
		if _, dup := handles[opt.ID]; dup {
			return fmt.Errorf("option %d: duplicate id %q", i+1, opt.ID)
		}
		handles[opt.ID] = struct{}{}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return nil
}

// Prompt renders the menu text followed by the numbered options.
func (c *MenuConfig) Prompt() string {
	var b strings.Builder
	b.WriteString(c.Text)
	b.WriteString("\n")
	for i, opt := range c.Options {
		fmt.Fprintf(&b, "\n%d - %s", i+1, opt.Label)
	}
	return b.String()
}

// Match selects an option by number, label or value.
func (c *MenuConfig) Match(answer string) (MenuOption, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return MenuOption{}, false
	}
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(c.Options) {
		return c.Options[n-1], true
	}
	for _, opt := range c.Options {
		if strings.EqualFold(answer, strings.TrimSpace(opt.Label)) ||
			(opt.Value != "" && strings.EqualFold(answer, strings.TrimSpace(opt.Value))) {
			return opt, true
		}
	}
	return MenuOption{}, false
}

type menuHandler struct{}

func (menuHandler) Type() string { return TypeMenu }

func (menuHandler) Decode(data map[string]any) (any, error) {
	return decodeConfig[MenuConfig](data)
}

func (h menuHandler) Execute(ctx context.Context, run *Run, node *Node) (Outcome, error) {
	cfg, err := configOf[MenuConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}
	if err := run.SendText(ctx, cfg.Prompt()); err != nil {
		return Outcome{}, err
	}
	run.Execution.Attempts = 0
	return Outcome{Wait: true}, nil
}

func (h menuHandler) Resume(ctx context.Context, run *Run, node *Node, in Input) (Outcome, error) {
	cfg, err := configOf[MenuConfig](node, h)
	if err != nil {
		return Outcome{}, err
	}

	opt, ok := cfg.Match(in.Text)
	if !ok {
		return retryOrGiveUp(ctx, run, node, cfg.InvalidMessage, cfg.MaxAttempts)
	}

	run.Execution.Attempts = 0
	if cfg.Variable != "" {
		value := opt.Value
		if value == "" {
			value = opt.Label
		}
		run.Vars.Set(cfg.Variable, value)
	}
	return Outcome{Handle: opt.ID, Detail: opt.Label}, nil
}
