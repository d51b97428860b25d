package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxkit/voxkit/internal/metrics"
	"github.com/voxkit/voxkit/pkg/platform"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
)

// fakePlatform is an in-memory voice-agent platform.
type fakePlatform struct {
	mu         sync.Mutex
	nextID     int
	tools      map[string]platform.ToolRequest
	assistants map[string][]string

	createErr error
	updateErr error
	deleteErr error
	getErr    error

	createCalls int
	deleteCalls []string
	listWrites  map[string]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		tools:      map[string]platform.ToolRequest{},
		assistants: map[string][]string{},
		listWrites: map[string]int{},
	}
}

func (f *fakePlatform) CreateTool(ctx context.Context, req platform.ToolRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ext-%d", f.nextID)
	f.tools[id] = req
	return id, nil
}

func (f *fakePlatform) UpdateTool(ctx context.Context, id string, req platform.ToolRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.tools[id]; !ok {
		return platform.ErrNotFound
	}
	f.tools[id] = req
	return nil
}

func (f *fakePlatform) DeleteTool(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.tools[id]; !ok {
		return platform.ErrNotFound
	}
	delete(f.tools, id)
	return nil
}

func (f *fakePlatform) GetAssistant(ctx context.Context, id string) (*platform.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	toolIDs, ok := f.assistants[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return &platform.Assistant{ID: id, ToolIDs: append([]string{}, toolIDs...)}, nil
}

func (f *fakePlatform) UpdateAssistantToolIDs(ctx context.Context, id string, toolIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assistants[id]; !ok {
		return platform.ErrNotFound
	}
	f.listWrites[id]++
	f.assistants[id] = append([]string{}, toolIDs...)
	return nil
}

// faultStore wraps the real store to inject persistence failures.
type faultStore struct {
	Store
	createToolErr error
	updateToolErr error
}

func (f *faultStore) CreateTool(ctx context.Context, tool *toolstore.Tool) error {
	if f.createToolErr != nil {
		return f.createToolErr
	}
	return f.Store.CreateTool(ctx, tool)
}

func (f *faultStore) UpdateTool(ctx context.Context, tool *toolstore.Tool) error {
	if f.updateToolErr != nil {
		return f.updateToolErr
	}
	return f.Store.UpdateTool(ctx, tool)
}

func newTestManager(t *testing.T) (*Manager, *toolstore.Store, *fakePlatform) {
	t.Helper()
	store, err := toolstore.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fake := newFakePlatform()
	mgr := NewManager(store, fake, "https://tools.example.com", zerolog.Nop(), metrics.New())
	return mgr, store, fake
}

func smsConfig(label string) toolconfig.Config {
	return toolconfig.Config{
		Type:  toolconfig.TypeSMS,
		Label: label,
		SMS: &toolconfig.SMSConfig{
			SenderMode:     toolconfig.SenderCalledNumber,
			BaseRecipients: []string{"{{caller_phone_number}}"},
			Message:        "Thanks for calling!",
		},
	}
}

func TestManager_Create_Attachable(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	assert.Equal(t, "send_followup", tool.Name)
	assert.NotEmpty(t, tool.ExternalToolID)

	// The platform representation exists and points back at the tool.
	req, ok := fake.tools[tool.ExternalToolID]
	require.True(t, ok)
	assert.Contains(t, req.ServerURL, tool.ID)
	assert.Equal(t, "send_followup", req.Name)

	stored, err := store.GetTool(ctx, tool.ID)
	require.NoError(t, err)
	assert.Equal(t, tool.ExternalToolID, stored.ExternalToolID)
}

func TestManager_Create_LocalOnly_SkipsPlatform(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	cfg := smsConfig("Call Briefing")
	attach := false
	cfg.AttachToAgent = &attach
	cfg.ExecuteOnCallStart = true

	tool, err := mgr.Create(ctx, "org-1", cfg)
	require.NoError(t, err)

	assert.Empty(t, tool.ExternalToolID)
	assert.Zero(t, fake.createCalls)

	stored, err := store.GetTool(ctx, tool.ID)
	require.NoError(t, err)
	assert.False(t, stored.AttachToAgent)
	assert.True(t, stored.ExecuteOnCallStart)
}

func TestManager_Create_InvalidConfig(t *testing.T) {
	mgr, _, fake := newTestManager(t)

	cfg := smsConfig("Broken")
	attach := false
	cfg.AttachToAgent = &attach
	cfg.ExecuteOnCallStart = false // unreachable tool

	_, err := mgr.Create(context.Background(), "org-1", cfg)
	assert.ErrorIs(t, err, toolconfig.ErrInvalid)
	assert.Zero(t, fake.createCalls)
}

func TestManager_Create_PlatformFailure_NoLocalRecord(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	fake.createErr = errors.New("platform down")

	_, err := mgr.Create(context.Background(), "org-1", smsConfig("Send Followup"))
	assert.ErrorIs(t, err, ErrExternalCreate)

	tools, listErr := store.ListTools(context.Background(), "org-1")
	require.NoError(t, listErr)
	assert.Empty(t, tools)
}

func TestManager_Create_LocalFailure_RollsBackPlatformTool(t *testing.T) {
	store, err := toolstore.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	fake := newFakePlatform()
	faulty := &faultStore{Store: store, createToolErr: errors.New("disk full")}
	mgr := NewManager(faulty, fake, "https://tools.example.com", zerolog.Nop(), metrics.New())

	_, err = mgr.Create(context.Background(), "org-1", smsConfig("Send Followup"))
	assert.ErrorIs(t, err, ErrPersistence)

	// The external tool was created, then compensated away.
	assert.Equal(t, 1, fake.createCalls)
	assert.Len(t, fake.deleteCalls, 1)
	assert.Empty(t, fake.tools)
}

func TestManager_Create_NameUniquenessLoop(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)
	second, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	assert.Equal(t, "send_followup", first.Name)
	assert.Equal(t, "send_followup_2", second.Name)
}

func TestManager_Update_LabelChangeRegeneratesName(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	cfg := smsConfig("After-Call Text")
	updated, err := mgr.Update(ctx, "org-1", tool.ID, cfg)
	require.NoError(t, err)
	assert.Equal(t, "after_call_text", updated.Name)

	// Updating without a label change keeps the name even if the label
	// would normalize to a taken one.
	same, err := mgr.Update(ctx, "org-1", tool.ID, cfg)
	require.NoError(t, err)
	assert.Equal(t, "after_call_text", same.Name)
}

func TestManager_Update_AttachableToLocalOnly(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)
	externalID := tool.ExternalToolID

	cfg := smsConfig("Send Followup")
	attach := false
	cfg.AttachToAgent = &attach
	cfg.ExecuteOnCallStart = true

	updated, err := mgr.Update(ctx, "org-1", tool.ID, cfg)
	require.NoError(t, err)

	assert.Empty(t, updated.ExternalToolID)
	assert.NotContains(t, fake.tools, externalID)

	stored, err := store.GetTool(ctx, tool.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ExternalToolID)
}

func TestManager_Update_LocalOnlyToAttachable(t *testing.T) {
	mgr, _, fake := newTestManager(t)
	ctx := context.Background()

	cfg := smsConfig("Call Briefing")
	attach := false
	cfg.AttachToAgent = &attach
	cfg.ExecuteOnCallStart = true

	tool, err := mgr.Create(ctx, "org-1", cfg)
	require.NoError(t, err)
	require.Empty(t, tool.ExternalToolID)

	cfg.AttachToAgent = nil // default true
	updated, err := mgr.Update(ctx, "org-1", tool.ID, cfg)
	require.NoError(t, err)

	assert.NotEmpty(t, updated.ExternalToolID)
	assert.Contains(t, fake.tools, updated.ExternalToolID)
}

func TestManager_Update_RepairsMissingExternalID(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	// Simulate drift: the record claims attachability but lost its
	// platform id.
	tool.ExternalToolID = ""
	require.NoError(t, store.UpdateTool(ctx, tool))
	delete(fake.tools, "ext-1")

	updated, err := mgr.Update(ctx, "org-1", tool.ID, smsConfig("Send Followup"))
	require.NoError(t, err)
	assert.NotEmpty(t, updated.ExternalToolID)
	assert.Contains(t, fake.tools, updated.ExternalToolID)
}

func TestManager_Update_ExternalFailureLeavesLocalUntouched(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	fake.updateErr = errors.New("platform down")
	_, err = mgr.Update(ctx, "org-1", tool.ID, smsConfig("Renamed Tool"))
	assert.ErrorIs(t, err, ErrExternalUpdate)

	stored, getErr := store.GetTool(ctx, tool.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "Send Followup", stored.Label)
	assert.Equal(t, "send_followup", stored.Name)
}

func TestManager_Update_Unauthorized(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	_, err = mgr.Update(ctx, "org-2", tool.ID, smsConfig("Hijacked"))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func seedAgent(t *testing.T, store *toolstore.Store, fake *fakePlatform, orgID string) *toolstore.Agent {
	t.Helper()
	agent := &toolstore.Agent{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           "Receptionist",
		AssistantID:    "asst-" + uuid.NewString()[:8],
	}
	require.NoError(t, store.CreateAgent(context.Background(), agent))
	fake.assistants[agent.AssistantID] = []string{}
	return agent
}

func TestManager_AttachDetach_PlatformMode(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)
	agent := seedAgent(t, store, fake, "org-1")

	require.NoError(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID))
	assert.Equal(t, []string{tool.ExternalToolID}, fake.assistants[agent.AssistantID])

	// Second attach conflicts regardless of mechanism.
	assert.ErrorIs(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID), ErrAlreadyAttached)

	require.NoError(t, mgr.Detach(ctx, "org-1", agent.ID, tool.ID))
	assert.Empty(t, fake.assistants[agent.AssistantID])

	// Detach converges: repeating it succeeds.
	assert.NoError(t, mgr.Detach(ctx, "org-1", agent.ID, tool.ID))
}

func TestManager_AttachDetach_LocalMode(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	cfg := smsConfig("Call Briefing")
	attach := false
	cfg.AttachToAgent = &attach
	cfg.ExecuteOnCallStart = true
	tool, err := mgr.Create(ctx, "org-1", cfg)
	require.NoError(t, err)

	agent := seedAgent(t, store, fake, "org-1")

	require.NoError(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID))

	attached, err := store.IsAttachedLocally(ctx, agent.ID, tool.ID)
	require.NoError(t, err)
	assert.True(t, attached)
	assert.Empty(t, fake.assistants[agent.AssistantID], "local attachment must not touch the platform")

	assert.ErrorIs(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID), ErrAlreadyAttached)

	require.NoError(t, mgr.Detach(ctx, "org-1", agent.ID, tool.ID))
	attached, err = store.IsAttachedLocally(ctx, agent.ID, tool.ID)
	require.NoError(t, err)
	assert.False(t, attached)
}

func TestManager_Attach_LocalModeRequiresCallStartFlag(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	// Forge an invalid record directly in the store: not attachable and
	// not call-start (creation would reject this config).
	tool := &toolstore.Tool{
		ID:             uuid.NewString(),
		OrganizationID: "org-1",
		Type:           toolconfig.TypeSMS,
		Name:           "forged",
		Label:          "Forged",
		FunctionSchema: map[string]interface{}{"type": "object"},
		StaticConfig:   map[string]interface{}{},
		AttachToAgent:  false,
	}
	require.NoError(t, store.CreateTool(ctx, tool))
	agent := seedAgent(t, store, fake, "org-1")

	assert.ErrorIs(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID), ErrInvalidAttachmentMode)
}

func TestManager_Delete_RemovesEverywhere(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	agentA := seedAgent(t, store, fake, "org-1")
	agentB := seedAgent(t, store, fake, "org-1")
	require.NoError(t, mgr.Attach(ctx, "org-1", agentA.ID, tool.ID))
	require.NoError(t, mgr.Attach(ctx, "org-1", agentB.ID, tool.ID))

	require.NoError(t, mgr.Delete(ctx, "org-1", tool.ID))

	// No assistant list still carries the external id.
	for assistantID, toolIDs := range fake.assistants {
		assert.NotContains(t, toolIDs, tool.ExternalToolID, "assistant %s", assistantID)
	}
	// Platform tool is gone, local record is gone.
	assert.NotContains(t, fake.tools, tool.ExternalToolID)
	_, err = store.GetTool(ctx, tool.ID)
	assert.ErrorIs(t, err, toolstore.ErrNotFound)
}

func TestManager_Delete_BatchesOneWritePerAgent(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	agent := seedAgent(t, store, fake, "org-1")
	require.NoError(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID))
	writesBefore := fake.listWrites[agent.AssistantID]

	require.NoError(t, mgr.Delete(ctx, "org-1", tool.ID))
	assert.Equal(t, writesBefore+1, fake.listWrites[agent.AssistantID])
}

func TestManager_Delete_ToleratesPlatform404(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)

	// The platform tool vanished out of band.
	delete(fake.tools, tool.ExternalToolID)

	require.NoError(t, mgr.Delete(ctx, "org-1", tool.ID))
	_, err = store.GetTool(ctx, tool.ID)
	assert.ErrorIs(t, err, toolstore.ErrNotFound)
}

func TestManager_Delete_AbortsOnNon404PlatformFailure(t *testing.T) {
	mgr, store, fake := newTestManager(t)
	ctx := context.Background()

	tool, err := mgr.Create(ctx, "org-1", smsConfig("Send Followup"))
	require.NoError(t, err)
	agent := seedAgent(t, store, fake, "org-1")
	require.NoError(t, mgr.Attach(ctx, "org-1", agent.ID, tool.ID))

	fake.getErr = errors.New("platform down")
	err = mgr.Delete(ctx, "org-1", tool.ID)
	assert.ErrorIs(t, err, ErrExternalDelete)

	// Local record survives so a retry converges.
	_, getErr := store.GetTool(ctx, tool.ID)
	assert.NoError(t, getErr)

	// Retry after the platform recovers.
	fake.getErr = nil
	assert.NoError(t, mgr.Delete(ctx, "org-1", tool.ID))
}

func TestManager_Delete_NotFound(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	err := mgr.Delete(context.Background(), "org-1", "missing")
	assert.ErrorIs(t, err, toolstore.ErrNotFound)
}
