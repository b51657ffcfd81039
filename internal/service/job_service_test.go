package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/inbox-rules-api/internal/dto"
	"github.com/noah-isme/inbox-rules-api/internal/models"
	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
)

type jobRepoStub struct {
	jobs       map[string]*models.Job
	gets       int
	createErr  error
	replaceErr error
}

func newJobRepoStub() *jobRepoStub {
	return &jobRepoStub{jobs: map[string]*models.Job{}}
}

func (s *jobRepoStub) Create(ctx context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *jobRepoStub) Get(ctx context.Context, userID, id string) (*models.Job, error) {
	s.gets++
	job, ok := s.jobs[id]
	if !ok || job.UserID != userID {
		return nil, sql.ErrNoRows
	}
	stored := *job
	return &stored, nil
}

func (s *jobRepoStub) ListActiveByUser(ctx context.Context, userID string) ([]models.Job, error) {
	var out []models.Job
	for _, job := range s.jobs {
		if job.UserID == userID && job.IsActive {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *jobRepoStub) ExistsByName(ctx context.Context, userID, name, excludeID string) (bool, error) {
	for _, job := range s.jobs {
		if job.UserID == userID && job.IsActive && job.Name == name && job.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *jobRepoStub) Replace(ctx context.Context, job *models.Job) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

type ruleRepoStub struct {
	records  map[string]models.JobRule
	writes   int
	failAt   int
	writeLog []string
}

func newRuleRepoStub() *ruleRepoStub {
	return &ruleRepoStub{records: map[string]models.JobRule{}}
}

func (s *ruleRepoStub) write(kind string, rule *models.JobRule) error {
	s.writes++
	if s.failAt > 0 && s.writes == s.failAt {
		return errors.New("connection reset")
	}
	s.records[rule.ID] = *rule
	s.writeLog = append(s.writeLog, kind+":"+rule.ID)
	return nil
}

func (s *ruleRepoStub) Create(ctx context.Context, rule *models.JobRule) error {
	return s.write("create", rule)
}

func (s *ruleRepoStub) Replace(ctx context.Context, rule *models.JobRule) error {
	if _, ok := s.records[rule.ID]; !ok {
		return sql.ErrNoRows
	}
	return s.write("replace", rule)
}

func (s *ruleRepoStub) ListByJob(ctx context.Context, userID, jobID string) ([]models.JobRule, error) {
	var out []models.JobRule
	for _, r := range s.records {
		if r.UserID == userID && r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ruleRepoStub) ListActiveByUser(ctx context.Context, userID string) ([]models.JobRule, error) {
	var out []models.JobRule
	for _, r := range s.records {
		if r.UserID == userID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ruleRepoStub) FindOwners(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out[id] = r.JobID
		}
	}
	return out, nil
}

func (s *ruleRepoStub) active(jobID string) []models.JobRule {
	var out []models.JobRule
	for _, r := range s.records {
		if r.JobID == jobID && r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

type jobCacheStub struct {
	entries     map[string][]dto.JobResponse
	invalidated []string
}

func newJobCacheStub() *jobCacheStub {
	return &jobCacheStub{entries: map[string][]dto.JobResponse{}}
}

func (c *jobCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	v, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]dto.JobResponse)) = v
	return true, nil
}

func (c *jobCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.entries[key] = value.([]dto.JobResponse)
	return nil
}

func (c *jobCacheStub) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
	return nil
}

const (
	testUser = "user-1"
	idA      = "00000000-0000-4000-8000-00000000000a"
	idB      = "00000000-0000-4000-8000-00000000000b"
	idC      = "00000000-0000-4000-8000-00000000000c"
	idD      = "00000000-0000-4000-8000-00000000000d"
	jobOne   = "00000000-0000-4000-8000-000000000001"
	jobX     = "00000000-0000-4000-8000-000000000002"
)

func sequenceIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-4000-9000-%012d", n)
	}
}

func newTestJobService() (*JobService, *jobRepoStub, *ruleRepoStub, *jobCacheStub) {
	jobs := newJobRepoStub()
	rules := newRuleRepoStub()
	cache := newJobCacheStub()
	svc := NewJobService(jobs, rules, cache, nil, nil, JobServiceConfig{CacheTTL: time.Minute})
	svc.newID = sequenceIDs()
	return svc, jobs, rules, cache
}

func leaf(id, op, value string, order int) *models.RuleNode {
	return &models.RuleNode{ID: id, Type: models.RuleTypeRule, Operator: op, Value: value, Order: order}
}

func groupOf(id, op string, order int, children ...*models.RuleNode) *models.RuleNode {
	return &models.RuleNode{ID: id, Type: models.RuleTypeGroup, Operator: op, Order: order, Rules: children}
}

func receiptsPayload() dto.JobPayload {
	return dto.JobPayload{
		Name:   "Receipts",
		Action: models.JobActionArchive,
		Rules: []*models.RuleNode{
			groupOf("", "AND", 0,
				leaf("", "from", "Alice Example", 0),
				leaf("", "label", "receipts", 1),
			),
		},
	}
}

func TestJobServiceCreateMintsIDsAndReturnsTree(t *testing.T) {
	svc, jobs, rules, cache := newTestJobService()

	resp, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)

	assert.Equal(t, "Receipts", resp.Name)
	assert.True(t, resp.IsActive)
	require.Len(t, resp.Rules, 1)
	root := resp.Rules[0]
	assert.True(t, root.IsGroup())
	require.Len(t, root.Rules, 2)
	assert.Equal(t, "Alice Example", root.Rules[0].Value)
	assert.Len(t, jobs.jobs, 1)
	assert.Len(t, rules.records, 3)
	for _, r := range rules.records {
		assert.Equal(t, resp.ID, r.JobID)
		assert.NotEmpty(t, r.ID)
	}
	assert.Contains(t, cache.invalidated, "jobs:"+testUser)
}

func TestJobServiceCreateRejectsInvalidTree(t *testing.T) {
	svc, jobs, _, _ := newTestJobService()
	payload := receiptsPayload()
	payload.Rules[0].Rules = payload.Rules[0].Rules[:1]

	_, err := svc.Create(context.Background(), testUser, payload)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, jobs.jobs)
}

func TestJobServiceCreateRejectsBadPayload(t *testing.T) {
	svc, _, _, _ := newTestJobService()
	payload := receiptsPayload()
	payload.Action = "delete"

	_, err := svc.Create(context.Background(), testUser, payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJobServiceCreateRejectsDuplicateName(t *testing.T) {
	svc, _, _, _ := newTestJobService()
	_, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), testUser, receiptsPayload())
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "already exists")
}

func TestJobServiceCreateRejectsForeignRuleID(t *testing.T) {
	svc, _, rules, _ := newTestJobService()
	rules.records[idA] = models.JobRule{ID: idA, UserID: "someone-else", JobID: "other-job", IsActive: true}

	payload := receiptsPayload()
	payload.Rules[0].ID = idA
	_, err := svc.Create(context.Background(), testUser, payload)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "belongs to another job")
}

func TestJobServiceGetMissingOrInactive(t *testing.T) {
	svc, jobs, _, _ := newTestJobService()
	jobs.jobs[jobX] = &models.Job{ID: jobX, UserID: testUser, IsActive: false}

	_, err := svc.Get(context.Background(), testUser, jobX)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), testUser, "00000000-0000-4000-8000-0000000000ff")
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestJobServiceMalformedJobIDIsNotFound(t *testing.T) {
	svc, jobs, _, _ := newTestJobService()
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "123", "00000000-0000-4000-8000"} {
		_, err := svc.Get(ctx, testUser, id)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)

		_, err = svc.Update(ctx, testUser, id, receiptsPayload())
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

		_, err = svc.Delete(ctx, testUser, id)
		assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	}
	assert.Zero(t, jobs.gets)
}

func TestJobServiceGetCorruptTree(t *testing.T) {
	svc, jobs, rules, _ := newTestJobService()
	jobs.jobs[jobOne] = &models.Job{ID: jobOne, UserID: testUser, IsActive: true}
	for _, id := range []string{idA, idB} {
		rules.records[id] = models.JobRule{ID: id, UserID: testUser, JobID: jobOne, Type: models.RuleTypeGroup, Operator: "AND", IsActive: true}
	}

	_, err := svc.Get(context.Background(), testUser, jobOne)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRuleTreeCorrupt.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrRuleTreeCorrupt.Message, appErr.Message)
}

func TestJobServiceListUsesCache(t *testing.T) {
	svc, _, _, cache := newTestJobService()
	created, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)

	list, err := svc.List(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	require.Contains(t, cache.entries, "jobs:"+testUser)

	cache.entries["jobs:"+testUser] = []dto.JobResponse{{ID: "from-cache"}}
	list, err = svc.List(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "from-cache", list[0].ID)
}

func TestJobServiceWritesDropOnlyTheUsersCacheKey(t *testing.T) {
	svc, _, _, cache := newTestJobService()
	cache.entries["jobs:"+testUser+"0"] = []dto.JobResponse{{ID: "other-user"}}

	created, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)
	_, err = svc.Delete(context.Background(), testUser, created.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"jobs:" + testUser, "jobs:" + testUser}, cache.invalidated)
	assert.Contains(t, cache.entries, "jobs:"+testUser+"0")
}

func TestJobServiceUpdateReconciles(t *testing.T) {
	svc, _, rules, _ := newTestJobService()
	payload := dto.JobPayload{
		Name:   "Old mail",
		Action: models.JobActionArchive,
		Rules: []*models.RuleNode{
			groupOf(idA, "OR", 0, leaf(idB, "older_than", "30D", 0), leaf(idC, "label", "promo", 1)),
		},
	}
	created, err := svc.Create(context.Background(), testUser, payload)
	require.NoError(t, err)

	update := dto.JobPayload{
		Name:   "Old mail",
		Action: models.JobActionArchive,
		Rules: []*models.RuleNode{
			groupOf(idA, "AND", 0, leaf(idB, "older_than", "1Y", 0), leaf(idD, "from", "bob", 1)),
		},
	}
	resp, err := svc.Update(context.Background(), testUser, created.ID, update)
	require.NoError(t, err)

	assert.Equal(t, string(models.GroupOperatorAnd), resp.Rules[0].Operator)
	assert.Equal(t, "1Y", rules.records[idB].ValueString())
	assert.False(t, rules.records[idC].IsActive)
	assert.True(t, rules.records[idD].IsActive)
	assert.Len(t, rules.active(created.ID), 3)
}

func TestJobServiceUpdateIsIdempotent(t *testing.T) {
	svc, _, rules, _ := newTestJobService()
	payload := dto.JobPayload{
		Name:   "Stable",
		Action: models.JobActionArchive,
		Rules:  []*models.RuleNode{groupOf(idA, "AND", 0, leaf(idB, "from", "x", 0), leaf(idC, "from", "y", 1))},
	}
	created, err := svc.Create(context.Background(), testUser, payload)
	require.NoError(t, err)
	before := len(rules.records)

	_, err = svc.Update(context.Background(), testUser, created.ID, payload)
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), testUser, created.ID, payload)
	require.NoError(t, err)

	assert.Len(t, rules.records, before)
	assert.Len(t, rules.active(created.ID), 3)
}

func TestJobServiceUpdatePartialFailureLeavesWrittenRecords(t *testing.T) {
	svc, _, rules, _ := newTestJobService()
	payload := dto.JobPayload{
		Name:   "Partial",
		Action: models.JobActionArchive,
		Rules:  []*models.RuleNode{groupOf(idA, "AND", 0, leaf(idB, "from", "x", 0), leaf(idC, "from", "y", 1))},
	}
	created, err := svc.Create(context.Background(), testUser, payload)
	require.NoError(t, err)

	update := dto.JobPayload{
		Name:   "Partial",
		Action: models.JobActionArchive,
		Rules:  []*models.RuleNode{groupOf(idA, "OR", 0, leaf(idB, "from", "x2", 0), leaf(idD, "from", "z", 1))},
	}
	// create idD, replace idA, then fail replacing idB
	rules.writes = 0
	rules.failAt = 3
	_, err = svc.Update(context.Background(), testUser, created.ID, update)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	assert.True(t, rules.records[idD].IsActive)
	assert.Equal(t, "OR", rules.records[idA].Operator)
	assert.Equal(t, "x", rules.records[idB].ValueString())
	assert.True(t, rules.records[idC].IsActive)
}

func TestJobServiceUpdateIDChecks(t *testing.T) {
	svc, _, _, _ := newTestJobService()

	_, err := svc.Update(context.Background(), testUser, "", receiptsPayload())
	assert.Equal(t, "job id is required", appErrors.FromError(err).Message)

	payload := receiptsPayload()
	payload.ID = idA
	_, err = svc.Update(context.Background(), testUser, idB, payload)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), testUser, "", payload)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestJobServiceUpdateAllowsKeepingOwnName(t *testing.T) {
	svc, _, _, _ := newTestJobService()
	created, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), testUser, created.ID, receiptsPayload())
	assert.NoError(t, err)
}

func TestJobServiceDeleteSoftDeletes(t *testing.T) {
	svc, jobs, rules, cache := newTestJobService()
	created, err := svc.Create(context.Background(), testUser, receiptsPayload())
	require.NoError(t, err)
	total := len(rules.records)

	resp, err := svc.Delete(context.Background(), testUser, created.ID)
	require.NoError(t, err)
	assert.Equal(t, &dto.DeleteJobResponse{ID: created.ID, Deleted: true}, resp)

	assert.False(t, jobs.jobs[created.ID].IsActive)
	assert.Len(t, rules.records, total)
	assert.Empty(t, rules.active(created.ID))
	assert.Contains(t, cache.invalidated, "jobs:"+testUser)

	_, err = svc.Get(context.Background(), testUser, created.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	_, err = svc.Delete(context.Background(), testUser, created.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestJobServiceDeleteRequiresID(t *testing.T) {
	svc, _, _, _ := newTestJobService()
	_, err := svc.Delete(context.Background(), testUser, " ")
	require.Error(t, err)
	assert.Equal(t, "job id is required", appErrors.FromError(err).Message)
}
