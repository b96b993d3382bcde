package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prodexhq/prodex/internal/corpus"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/pkg/types"
)

var (
	// ErrIndexingTimeout is returned when the vector store does not finish
	// indexing the corpus file within the attach poll budget.
	ErrIndexingTimeout = errors.New("vector store indexing timed out")

	// ErrRunAlreadyActive is returned when a thread already has a run in
	// flight. Callers surface a retry-later message instead of queuing a
	// duplicate run.
	ErrRunAlreadyActive = errors.New("a run is already active on this thread")

	// ErrRunFailed is returned when a run reaches a terminal state other
	// than completed.
	ErrRunFailed = errors.New("assistant run failed")

	// ErrRunTimeout is returned when a run is still in progress after the
	// run poll budget.
	ErrRunTimeout = errors.New("assistant run timed out")

	// ErrEmptyCorpus is returned when a tenant has no entity snapshots to
	// sync.
	ErrEmptyCorpus = errors.New("tenant has no content to sync")
)

// ManagerConfig holds sync and polling configuration for the lifecycle
// manager.
type ManagerConfig struct {
	// StalenessTTL is how old a registration may get before the next
	// EnsureSynced rebuilds it. Zero disables age-based expiry; an
	// explicit Invalidate still forces a rebuild.
	StalenessTTL time.Duration

	AttachPollDelay time.Duration // default: 2s
	AttachMaxPolls  int           // default: 10
	RunPollDelay    time.Duration // default: 2s
	RunMaxPolls     int           // default: 30

	AssistantName   string // display name prefix, default: "prodex"
	AssistantPrompt string
}

// Manager owns the per-tenant assistant lifecycle: it mirrors the tenant's
// entity snapshots into a hosted vector store, keeps one assistant per
// tenant pointed at the current corpus generation, and drives message runs
// on user threads.
type Manager struct {
	provider      ProviderClient
	registrations storage.RegistrationStore
	threads       storage.ThreadStore
	entities      storage.EntityStore
	cfg           ManagerConfig

	// syncMu holds one mutex per tenant so concurrent EnsureSynced calls
	// for the same tenant collapse into one sync. Entries are never
	// evicted, so the map grows with the number of distinct tenants
	// synced over the process lifetime.
	syncMu sync.Map // tenantID -> *sync.Mutex

	// activeRuns guards one run per thread.
	activeMu   sync.Mutex
	activeRuns map[string]bool // threadID -> run in flight
}

// NewManager creates the lifecycle manager with defaults applied.
func NewManager(provider ProviderClient, reg storage.RegistrationStore, threads storage.ThreadStore, entities storage.EntityStore, cfg ManagerConfig) *Manager {
	if cfg.AttachPollDelay <= 0 {
		cfg.AttachPollDelay = 2 * time.Second
	}
	if cfg.AttachMaxPolls <= 0 {
		cfg.AttachMaxPolls = 10
	}
	if cfg.RunPollDelay <= 0 {
		cfg.RunPollDelay = 2 * time.Second
	}
	if cfg.RunMaxPolls <= 0 {
		cfg.RunMaxPolls = 30
	}
	if cfg.AssistantName == "" {
		cfg.AssistantName = "prodex"
	}
	return &Manager{
		provider:      provider,
		registrations: reg,
		threads:       threads,
		entities:      entities,
		cfg:           cfg,
		activeRuns:    make(map[string]bool),
	}
}

// EnsureSynced makes sure the tenant's assistant reflects its current
// entity snapshots. A fresh registration is a no-op; otherwise the full
// corpus is rebuilt and uploaded as a new file/store generation, the
// assistant is repointed, and the previous generation is deleted best
// effort. Concurrent calls for one tenant serialize; the second caller
// observes the registration the first one produced.
func (m *Manager) EnsureSynced(ctx context.Context, tenantID string) (*types.AssistantRegistration, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}

	mu := m.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	reg, err := m.registrations.GetRegistration(ctx, tenantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	if reg != nil && !reg.Stale(m.cfg.StalenessTTL, time.Now()) {
		return reg, nil
	}

	return m.sync(ctx, tenantID, reg)
}

// Invalidate marks the tenant's registration stale so the next
// EnsureSynced rebuilds it regardless of TTL.
func (m *Manager) Invalidate(ctx context.Context, tenantID string) error {
	reg, err := m.registrations.GetRegistration(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	reg.LastSynced = time.Time{}
	return m.registrations.SaveRegistration(ctx, reg)
}

// GetOrCreateAssistant returns the tenant's assistant id, syncing first if
// the tenant has none or the registration is stale.
func (m *Manager) GetOrCreateAssistant(ctx context.Context, tenantID string) (string, error) {
	reg, err := m.EnsureSynced(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return reg.AssistantID, nil
}

// GetUserThread returns the user's thread binding, creating a remote
// thread on first use.
func (m *Manager) GetUserThread(ctx context.Context, tenantID, userID string) (*types.ThreadBinding, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("tenant id and user id are required")
	}

	binding, err := m.threads.GetThread(ctx, tenantID, userID)
	if err == nil {
		return binding, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load thread binding: %w", err)
	}

	threadID, err := m.provider.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	binding = &types.ThreadBinding{
		TenantID:  tenantID,
		UserID:    userID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.threads.SaveThread(ctx, binding); err != nil {
		return nil, fmt.Errorf("failed to save thread binding: %w", err)
	}
	return binding, nil
}

// SendMessage posts the text to the thread, starts a run, and polls until
// the run completes. At most one run may be active per thread; a second
// send while one is in flight fails with ErrRunAlreadyActive without
// creating a run. On completion the newest assistant message is returned.
func (m *Manager) SendMessage(ctx context.Context, threadID, assistantID, text string) (*types.ChatTurn, error) {
	if threadID == "" || assistantID == "" {
		return nil, fmt.Errorf("thread id and assistant id are required")
	}
	if text == "" {
		return nil, fmt.Errorf("message text is required")
	}

	if !m.claimThread(threadID) {
		return nil, ErrRunAlreadyActive
	}
	defer m.releaseThread(threadID)

	if _, err := m.provider.PostMessage(ctx, threadID, "user", text); err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}

	run, err := m.provider.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	p := newPoller(m.cfg.RunPollDelay, m.cfg.RunMaxPolls)
	err = p.wait(ctx, func(ctx context.Context) (bool, error) {
		current, err := m.provider.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return false, fmt.Errorf("failed to fetch run %s: %w", run.ID, err)
		}
		if !current.Status.Terminal() {
			return false, nil
		}
		if current.Status != types.RunCompleted {
			return false, fmt.Errorf("%w: run %s ended %s: %s",
				ErrRunFailed, current.ID, current.Status, current.LastError)
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrPollBudgetExhausted) {
			return nil, fmt.Errorf("%w: run %s still in progress after %d polls",
				ErrRunTimeout, run.ID, m.cfg.RunMaxPolls)
		}
		return nil, err
	}

	reply, err := m.provider.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assistant reply: %w", err)
	}

	return &types.ChatTurn{
		Role:      "assistant",
		Content:   reply,
		Timestamp: time.Now().UTC(),
		ThreadID:  threadID,
		RunID:     run.ID,
	}, nil
}

// sync rebuilds the tenant's corpus generation. Caller holds the tenant
// lock.
func (m *Manager) sync(ctx context.Context, tenantID string, prev *types.AssistantRegistration) (*types.AssistantRegistration, error) {
	entities, err := m.entities.ListEntities(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	if len(entities) == 0 {
		return nil, ErrEmptyCorpus
	}
	document := corpus.BuildCorpus(tenantID, entities)

	fileID, err := m.provider.CreateFile(ctx, tenantID+"-corpus.md", []byte(document))
	if err != nil {
		return nil, fmt.Errorf("failed to upload corpus file: %w", err)
	}

	storeID, err := m.provider.CreateVectorStore(ctx, m.cfg.AssistantName+"-"+tenantID)
	if err != nil {
		m.cleanupGeneration(ctx, &types.AssistantRegistration{FileIDs: []string{fileID}})
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	// From here on a failure would strand the new file/store at the
	// provider, so discard the generation best effort before returning.
	discard := func() {
		m.cleanupGeneration(ctx, &types.AssistantRegistration{VectorStoreID: storeID, FileIDs: []string{fileID}})
	}

	if err := m.attachAndWait(ctx, storeID, fileID); err != nil {
		discard()
		return nil, err
	}

	spec := AssistantSpec{
		Name:          m.cfg.AssistantName + "-" + tenantID,
		Instructions:  m.cfg.AssistantPrompt,
		VectorStoreID: storeID,
	}

	assistantID := ""
	if prev != nil && prev.AssistantID != "" {
		assistantID = prev.AssistantID
		if err := m.provider.UpdateAssistant(ctx, assistantID, spec); err != nil {
			discard()
			return nil, fmt.Errorf("failed to update assistant: %w", err)
		}
	} else {
		assistantID, err = m.provider.CreateAssistant(ctx, spec)
		if err != nil {
			discard()
			return nil, fmt.Errorf("failed to create assistant: %w", err)
		}
	}

	now := time.Now().UTC()
	reg := &types.AssistantRegistration{
		TenantID:      tenantID,
		AssistantID:   assistantID,
		VectorStoreID: storeID,
		FileIDs:       []string{fileID},
		LastSynced:    now,
		CreatedAt:     now,
	}
	if prev != nil {
		reg.CreatedAt = prev.CreatedAt
	}
	if err := m.registrations.SaveRegistration(ctx, reg); err != nil {
		discard()
		return nil, fmt.Errorf("failed to save registration: %w", err)
	}

	if prev != nil {
		m.cleanupGeneration(ctx, prev)
	}

	log.Printf("Synced assistant for tenant %s (%d entities, store %s)", tenantID, len(entities), storeID)
	return reg, nil
}

// attachAndWait attaches the file and polls until indexing finishes.
func (m *Manager) attachAndWait(ctx context.Context, storeID, fileID string) error {
	if err := m.provider.AttachFile(ctx, storeID, fileID); err != nil {
		return fmt.Errorf("failed to attach file to vector store: %w", err)
	}

	p := newPoller(m.cfg.AttachPollDelay, m.cfg.AttachMaxPolls)
	err := p.wait(ctx, func(ctx context.Context) (bool, error) {
		status, err := m.provider.GetFileStatus(ctx, storeID, fileID)
		if err != nil {
			return false, fmt.Errorf("failed to check file status: %w", err)
		}
		switch status {
		case FileCompleted:
			return true, nil
		case FileFailed, FileCancelled:
			return false, fmt.Errorf("vector store indexing ended with status %s", status)
		}
		return false, nil
	})
	if errors.Is(err, ErrPollBudgetExhausted) {
		return fmt.Errorf("%w: file %s not indexed after %d polls",
			ErrIndexingTimeout, fileID, m.cfg.AttachMaxPolls)
	}
	return err
}

// cleanupGeneration deletes a file/store generation, either the previous
// one after a successful sync or a half-built one after a failed sync.
// Failures are logged and swallowed so cleanup never masks the sync
// outcome.
func (m *Manager) cleanupGeneration(ctx context.Context, gen *types.AssistantRegistration) {
	if gen.VectorStoreID != "" {
		if err := m.provider.DeleteVectorStore(ctx, gen.VectorStoreID); err != nil {
			log.Printf("WARNING: failed to delete vector store %s: %v", gen.VectorStoreID, err)
		}
	}
	for _, fileID := range gen.FileIDs {
		if err := m.provider.DeleteFile(ctx, fileID); err != nil {
			log.Printf("WARNING: failed to delete corpus file %s: %v", fileID, err)
		}
	}
}

func (m *Manager) tenantLock(tenantID string) *sync.Mutex {
	mu, _ := m.syncMu.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Manager) claimThread(threadID string) bool {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	if m.activeRuns[threadID] {
		return false
	}
	m.activeRuns[threadID] = true
	return true
}

func (m *Manager) releaseThread(threadID string) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	delete(m.activeRuns, threadID)
}
