package flow

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Node types.
const (
	TypeStart       = "start"
	TypeMessage     = "message"
	TypeMedia       = "media"
	TypeQuestion    = "question"
	TypeMenu        = "menu"
	TypeSwitch      = "switch"
	TypeWebhook     = "webhook"
	TypeAPI         = "api"
	TypeAttendant   = "attendant"
	TypeDatabase    = "database"
	TypeSchedule    = "schedule"
	TypeAppointment = "appointment"
	TypeInactivity  = "inactivity"
	TypeInterval    = "interval"
	TypeRandomizer  = "randomizer"
	TypeEnd         = "end"
)

// Types whose configuration carries sealed secret headers.
var secretNodeTypes = map[string]struct{}{
	TypeWebhook: {},
	TypeAPI:     {},
}

// CarriesSecrets reports whether nodes of this type keep DataSecretHeaders.
func CarriesSecrets(nodeType string) bool {
	_, ok := secretNodeTypes[nodeType]
	return ok
}

func builtinHandlers() []Handler {
	return []Handler{
		startHandler{},
		messageHandler{},
		mediaHandler{},
		questionHandler{},
		menuHandler{},
		switchHandler{},
		webhookHandler{},
		apiHandler{},
		attendantHandler{},
		databaseHandler{},
		scheduleHandler{},
		appointmentHandler{},
		inactivityHandler{},
		intervalHandler{},
		randomizerHandler{},
		endHandler{},
	}
}

type validatable interface {
	validate() error
}

// decodeConfig decodes loosely typed editor data (numbers as strings and so on)
// into a typed config and validates it.
func decodeConfig[T any](data map[string]any) (*T, error) {
	cfg := new(T)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if v, ok := any(cfg).(validatable); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// configOf returns the node's decoded config, decoding lazily when the graph
// was not validated first.
func configOf[T any](node *Node, h Handler) (*T, error) {
	if cfg, ok := node.Config.(*T); ok {
		return cfg, nil
	}
	decoded, err := h.Decode(node.Data)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", node.ID, err)
	}
	cfg, ok := decoded.(*T)
	if !ok {
		return nil, fmt.Errorf("node %q: unexpected config type %T", node.ID, decoded)
	}
	node.Config = cfg
	return cfg, nil
}
