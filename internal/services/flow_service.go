package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/cache"
	"github.com/charlesng35/engageflow/internal/flow"
	"github.com/charlesng35/engageflow/internal/models"
	"github.com/charlesng35/engageflow/internal/vault"
	apperrors "github.com/charlesng35/engageflow/pkg/errors"
	"github.com/charlesng35/engageflow/pkg/logger"
)

var (
	// ErrFlowNotFound indicates the requested flow does not exist in the company.
	ErrFlowNotFound = apperrors.New("FLOW_NOT_FOUND", "Flow not found", http.StatusNotFound)
	// ErrVaultUnavailable is returned when a flow carries secrets but no vault key is configured.
	ErrVaultUnavailable = apperrors.New("VAULT_UNAVAILABLE", "Secret storage is not configured", http.StatusServiceUnavailable)
)

const defaultGraphCacheTTL = time.Hour

// FlowInput carries the editable parts of a flow.
type FlowInput struct {
	Name        string
	Description string
	TriggerType string
	Keywords    []string
	Nodes       json.RawMessage
	Edges       json.RawMessage

	InactivityTimeout         int
	InactivityMaxWarnings     int
	InactivityWarningMessage  string
	InactivityEndMessage      string
	InactivityTransferQueueID *string
}

// ListFlowsOptions filters flow listings.
type ListFlowsOptions struct {
	Active *bool
	Query  string
}

// FlowServiceOption configures optional FlowService collaborators.
type FlowServiceOption func(*FlowService)

// WithGraphCache caches parsed graphs keyed by flow id and version.
func WithGraphCache(store cache.Store, ttl time.Duration) FlowServiceOption {
	return func(s *FlowService) {
		s.cache = store
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithVault seals webhook and api secret headers.
func WithVault(crypto *vault.Crypto) FlowServiceOption {
	return func(s *FlowService) {
		s.vault = crypto
	}
}

// WithFlowRegistry validates graphs against a custom node registry.
func WithFlowRegistry(reg *flow.Registry) FlowServiceOption {
	return func(s *FlowService) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// FlowService manages flow graphs. It satisfies flow.FlowSource.
type FlowService struct {
	db       *gorm.DB
	cache    cache.Store
	cacheTTL time.Duration
	vault    *vault.Crypto
	registry *flow.Registry
	log      *zap.Logger
}

var _ flow.FlowSource = (*FlowService)(nil)

// NewFlowService constructs a FlowService instance.
func NewFlowService(db *gorm.DB, opts ...FlowServiceOption) (*FlowService, error) {
	if db == nil {
		return nil, errors.New("flow service: db is required")
	}
	svc := &FlowService{
		db:       db,
		cacheTTL: defaultGraphCacheTTL,
		registry: flow.DefaultRegistry(),
		log:      logger.WithModule("flow-service"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// List returns the company's flows ordered by name.
func (s *FlowService) List(ctx context.Context, companyID string, opts ListFlowsOptions) ([]models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("company_id = ?", companyID)
	if opts.Active != nil {
		query = query.Where("active = ?", *opts.Active)
	}
	if strings.TrimSpace(opts.Query) != "" {
		query = query.Where("LOWER(name) LIKE ?", likePattern(opts.Query))
	}

	var flows []models.FlowBuilder
	if err := query.Order("name ASC").Find(&flows).Error; err != nil {
		return nil, fmt.Errorf("flow service: list flows: %w", err)
	}
	return flows, nil
}

// GetFlow loads a flow scoped to the company.
func (s *FlowService) GetFlow(ctx context.Context, companyID, id string) (*models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	var flowModel models.FlowBuilder
	if err := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).First(&flowModel).Error; err != nil {
		return nil, notFound(err, ErrFlowNotFound, "flow service: load flow")
	}
	return &flowModel, nil
}

// ActiveFlows returns the company's active flows, oldest first, for trigger matching.
func (s *FlowService) ActiveFlows(ctx context.Context, companyID string) ([]models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	var flows []models.FlowBuilder
	if err := s.db.WithContext(ctx).
		Where("company_id = ? AND active = ?", companyID, true).
		Order("created_at ASC").
		Find(&flows).Error; err != nil {
		return nil, fmt.Errorf("flow service: list active flows: %w", err)
	}
	return flows, nil
}

// Validate parses and checks a graph without saving it and returns every problem found.
func (s *FlowService) Validate(nodes, edges json.RawMessage) []string {
	_, err := s.parse(nodes, edges)
	return flow.Problems(err)
}

func (s *FlowService) parse(nodes, edges json.RawMessage) (*flow.Graph, error) {
	graph, err := flow.ParseGraph(nodes, edges)
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateWith(s.registry); err != nil {
		return nil, err
	}
	return graph, nil
}

func invalidFlow(err error) error {
	problems := flow.Problems(err)
	return apperrors.ErrInvalidFlow.
		WithMessage("Flow graph is invalid: " + strings.Join(problems, "; ")).
		WithDetails(map[string]any{"problems": problems}).
		WithInternal(err)
}

// Create validates and stores a new, inactive flow.
func (s *FlowService) Create(ctx context.Context, companyID string, input FlowInput) (*models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	flowModel := &models.FlowBuilder{CompanyID: companyID, Version: 1}
	var created *models.FlowBuilder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		graph, err := s.apply(tx, flowModel, input)
		if err != nil {
			return err
		}
		if err := tx.Create(flowModel).Error; err != nil {
			return fmt.Errorf("flow service: create flow: %w", err)
		}
		if err := s.syncNodes(tx, flowModel, graph, nil); err != nil {
			return err
		}
		created = flowModel
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update replaces the flow's editable fields and bumps its version. Live
// executions continue on the new version from their current node.
func (s *FlowService) Update(ctx context.Context, companyID, id string, input FlowInput) (*models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	var updated *models.FlowBuilder
	var previousVersion int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flowModel models.FlowBuilder
		if err := tx.Where("company_id = ? AND id = ?", companyID, id).First(&flowModel).Error; err != nil {
			return notFound(err, ErrFlowNotFound, "flow service: load flow")
		}
		previous, err := s.loadSecrets(tx, flowModel.ID)
		if err != nil {
			return err
		}
		previousVersion = flowModel.Version

		graph, err := s.apply(tx, &flowModel, input)
		if err != nil {
			return err
		}
		flowModel.Version++
		if err := tx.Omit("created_at").Save(&flowModel).Error; err != nil {
			return fmt.Errorf("flow service: update flow: %w", err)
		}
		if err := s.syncNodes(tx, &flowModel, graph, previous); err != nil {
			return err
		}
		updated = &flowModel
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id, previousVersion)
	return updated, nil
}

// apply validates input and copies it onto the model. Secret headers are
// replaced with the redaction marker in the stored graph.
func (s *FlowService) apply(tx *gorm.DB, flowModel *models.FlowBuilder, input FlowInput) (*flow.Graph, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("flow name is required")
	}

	trigger, keywords, err := normaliseTrigger(input.TriggerType, input.Keywords)
	if err != nil {
		return nil, err
	}
	if input.InactivityTimeout < 0 || input.InactivityMaxWarnings < 0 {
		return nil, apperrors.NewBadRequest("inactivity settings cannot be negative")
	}
	transferQueue := optionalString(input.InactivityTransferQueueID)
	if transferQueue != nil {
		if err := ensureOwned(tx, &models.Queue{}, flowModel.CompanyID, *transferQueue, ErrQueueNotFound); err != nil {
			return nil, err
		}
	}

	graph, err := s.parse(input.Nodes, input.Edges)
	if err != nil {
		return nil, invalidFlow(err)
	}
	for _, node := range graph.Nodes {
		if _, ok := node.Data[flow.DataSecretHeaders]; ok && !flow.CarriesSecrets(node.Type) {
			delete(node.Data, flow.DataSecretHeaders)
		}
	}

	flowModel.Name = name
	flowModel.Description = strings.TrimSpace(input.Description)
	flowModel.TriggerType = trigger
	flowModel.Keywords = keywords
	flowModel.InactivityTimeout = input.InactivityTimeout
	flowModel.InactivityMaxWarnings = input.InactivityMaxWarnings
	flowModel.InactivityWarningMessage = strings.TrimSpace(input.InactivityWarningMessage)
	flowModel.InactivityEndMessage = strings.TrimSpace(input.InactivityEndMessage)
	flowModel.InactivityTransferQueueID = transferQueue
	return graph, nil
}

func normaliseTrigger(triggerType string, keywords []string) (string, datatypes.JSONSlice[string], error) {
	var cleaned datatypes.JSONSlice[string]
	seen := make(map[string]struct{}, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		cleaned = append(cleaned, keyword)
	}

	triggerType = strings.ToLower(strings.TrimSpace(triggerType))
	switch triggerType {
	case "":
		if len(cleaned) > 0 {
			triggerType = models.TriggerExact
		}
	case models.TriggerExact, models.TriggerContains:
		if len(cleaned) == 0 {
			return "", nil, apperrors.NewBadRequest("keywords are required for a keyword trigger")
		}
	default:
		return "", nil, apperrors.NewBadRequest(fmt.Sprintf("unknown trigger type %q", triggerType))
	}
	return triggerType, cleaned, nil
}

// syncNodes seals secret headers, writes the redacted graph onto the model
// and mirrors every node config into FlowNode rows.
func (s *FlowService) syncNodes(tx *gorm.DB, flowModel *models.FlowBuilder, graph *flow.Graph, previous map[string]map[string]string) error {
	sealed := make(map[string]string)
	for _, node := range graph.Nodes {
		secrets := secretHeaders(node)
		if len(secrets) == 0 {
			continue
		}
		for key, value := range secrets {
			if value != vault.Redacted {
				continue
			}
			old, ok := previous[node.ID][key]
			if !ok {
				return apperrors.NewBadRequest(fmt.Sprintf("node %q: secret header %q has no stored value", node.ID, key))
			}
			secrets[key] = old
		}
		if s.vault == nil {
			return ErrVaultUnavailable
		}
		value, err := s.vault.SealSecrets(vault.SecretScope(flowModel.ID, node.ID), secrets)
		if err != nil {
			return fmt.Errorf("flow service: seal secrets: %w", err)
		}
		sealed[node.ID] = value

		redacted := make(map[string]any, len(secrets))
		for _, key := range vault.SecretKeys(secrets) {
			redacted[key] = vault.Redacted
		}
		node.Data[flow.DataSecretHeaders] = redacted
	}

	nodes, err := graph.MarshalNodes()
	if err != nil {
		return fmt.Errorf("flow service: encode nodes: %w", err)
	}
	edges, err := graph.MarshalEdges()
	if err != nil {
		return fmt.Errorf("flow service: encode edges: %w", err)
	}
	if err := tx.Model(flowModel).Updates(map[string]any{"nodes": datatypes.JSON(nodes), "edges": datatypes.JSON(edges)}).Error; err != nil {
		return fmt.Errorf("flow service: store graph: %w", err)
	}
	flowModel.Nodes = nodes
	flowModel.Edges = edges

	if err := tx.Where("flow_id = ?", flowModel.ID).Delete(&models.FlowNode{}).Error; err != nil {
		return fmt.Errorf("flow service: clear node configs: %w", err)
	}
	rows := make([]models.FlowNode, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		config, err := json.Marshal(node.Data)
		if err != nil {
			return fmt.Errorf("flow service: encode node %q: %w", node.ID, err)
		}
		rows = append(rows, models.FlowNode{
			CompanyID:        flowModel.CompanyID,
			FlowID:           flowModel.ID,
			NodeID:           node.ID,
			Type:             node.Type,
			Config:           config,
			EncryptedSecrets: sealed[node.ID],
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Omit("Flow").Create(&rows).Error; err != nil {
		return fmt.Errorf("flow service: store node configs: %w", err)
	}
	return nil
}

func secretHeaders(node *flow.Node) map[string]string {
	raw, ok := node.Data[flow.DataSecretHeaders].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[key] = flow.Stringify(value)
	}
	return out
}

// loadSecrets opens the stored secret headers of every node of a flow.
func (s *FlowService) loadSecrets(tx *gorm.DB, flowID string) (map[string]map[string]string, error) {
	sealed, err := sealedSecrets(tx, flowID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(sealed))
	for nodeID, value := range sealed {
		if s.vault == nil {
			return nil, ErrVaultUnavailable
		}
		secrets, err := s.vault.OpenSecrets(vault.SecretScope(flowID, nodeID), value)
		if err != nil {
			return nil, fmt.Errorf("flow service: open secrets of node %q: %w", nodeID, err)
		}
		out[nodeID] = secrets
	}
	return out, nil
}

func sealedSecrets(tx *gorm.DB, flowID string) (map[string]string, error) {
	var rows []models.FlowNode
	if err := tx.Select("node_id", "encrypted_secrets").
		Where("flow_id = ? AND encrypted_secrets <> ''", flowID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("flow service: load node secrets: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.NodeID] = row.EncryptedSecrets
	}
	return out, nil
}

// Delete removes a flow with its node configs and executions.
func (s *FlowService) Delete(ctx context.Context, companyID, id string) error {
	ctx = ensureContext(ctx)

	flowModel, err := s.GetFlow(ctx, companyID, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.FlowNode{}, &models.FlowBuilderExecution{}} {
			if err := tx.Where("company_id = ? AND flow_id = ?", companyID, id).Delete(model).Error; err != nil {
				return fmt.Errorf("flow service: delete flow rows: %w", err)
			}
		}
		if err := tx.Delete(&models.FlowBuilder{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("flow service: delete flow: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id, flowModel.Version)
	return nil
}

// SetActive toggles whether the flow can be triggered. Deactivating the
// default flow also clears the default flag.
func (s *FlowService) SetActive(ctx context.Context, companyID, id string, active bool) (*models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	flowModel, err := s.GetFlow(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{"active": active}
	if !active {
		updates["is_default"] = false
	}
	if err := s.db.WithContext(ctx).Model(flowModel).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("flow service: update flow state: %w", err)
	}
	return s.GetFlow(ctx, companyID, id)
}

// SetDefault makes the flow the company's fallback flow and activates it.
// Any previous default loses the flag.
func (s *FlowService) SetDefault(ctx context.Context, companyID, id string) (*models.FlowBuilder, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetFlow(ctx, companyID, id); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FlowBuilder{}).
			Where("company_id = ? AND is_default = ? AND id <> ?", companyID, true, id).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("flow service: clear default flow: %w", err)
		}
		if err := tx.Model(&models.FlowBuilder{}).
			Where("company_id = ? AND id = ?", companyID, id).
			Updates(map[string]any{"is_default": true, "active": true}).Error; err != nil {
			return fmt.Errorf("flow service: set default flow: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFlow(ctx, companyID, id)
}

type cachedGraph struct {
	Nodes   json.RawMessage   `json:"nodes"`
	Edges   json.RawMessage   `json:"edges"`
	Secrets map[string]string `json:"secrets,omitempty"`
}

func graphCacheKey(flowID string, version int) string {
	return fmt.Sprintf("flow:graph:%s:%d", flowID, version)
}

// LoadGraph returns the runnable graph of a flow with secret headers opened.
// The cache only ever holds the redacted graph and the sealed secrets.
func (s *FlowService) LoadGraph(ctx context.Context, flowModel *models.FlowBuilder) (*flow.Graph, error) {
	ctx = ensureContext(ctx)
	if flowModel == nil {
		return nil, ErrFlowNotFound
	}

	entry, err := s.cachedGraph(ctx, flowModel)
	if err != nil {
		return nil, err
	}
	graph, err := flow.ParseGraph(entry.Nodes, entry.Edges)
	if err != nil {
		return nil, err
	}
	for nodeID, value := range entry.Secrets {
		node, ok := graph.Node(nodeID)
		if !ok {
			continue
		}
		if s.vault == nil {
			s.log.Warn("flow has sealed secrets but no vault key is configured",
				zap.String("flow_id", flowModel.ID), zap.String("node_id", nodeID))
			continue
		}
		secrets, err := s.vault.OpenSecrets(vault.SecretScope(flowModel.ID, nodeID), value)
		if err != nil {
			return nil, fmt.Errorf("flow service: open secrets of node %q: %w", nodeID, err)
		}
		opened := make(map[string]any, len(secrets))
		for key, secret := range secrets {
			opened[key] = secret
		}
		node.Data[flow.DataSecretHeaders] = opened
	}
	return graph, nil
}

func (s *FlowService) cachedGraph(ctx context.Context, flowModel *models.FlowBuilder) (*cachedGraph, error) {
	key := graphCacheKey(flowModel.ID, flowModel.Version)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("graph cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var entry cachedGraph
			if err := json.Unmarshal(raw, &entry); err == nil {
				return &entry, nil
			}
		}
	}

	sealed, err := sealedSecrets(s.db.WithContext(ctx), flowModel.ID)
	if err != nil {
		return nil, err
	}
	entry := &cachedGraph{
		Nodes:   json.RawMessage(flowModel.Nodes),
		Edges:   json.RawMessage(flowModel.Edges),
		Secrets: sealed,
	}
	if s.cache != nil {
		raw, err := json.Marshal(entry)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
		if err != nil {
			s.log.Warn("graph cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entry, nil
}

func (s *FlowService) invalidate(ctx context.Context, flowID string, version int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, graphCacheKey(flowID, version)); err != nil {
		s.log.Warn("graph cache invalidation failed", zap.String("flow_id", flowID), zap.Error(err))
	}
}
