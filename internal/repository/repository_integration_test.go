//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/testutil"
)

// ============================================================================
// User Repository Integration Tests
// ============================================================================

func TestIntegrationUserRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, model.RoleProvider)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 || user.CreatedAt.IsZero() {
		t.Fatal("CreateUser should fill ID and CreatedAt")
	}

	got, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != user.ID || got.Gender != user.Gender || got.AgeGroup != user.AgeGroup {
		t.Errorf("unexpected user: %+v", got)
	}

	if err := repo.CreateUser(ctx, testutil.NewTestUserWithEmail(t, user.Email)); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}

	if _, err := repo.GetUserByID(ctx, 999999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIntegrationUserRepository_LinkGoogleAccount(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, model.RoleProvider)
	mustCreateUser(t, ctx, repo, user)

	if err := repo.LinkGoogleAccount(ctx, user.ID, "google-sub-1", "https://img/p.png"); err != nil {
		t.Fatalf("LinkGoogleAccount failed: %v", err)
	}

	got, err := repo.GetUserByGoogleID(ctx, "google-sub-1")
	if err != nil {
		t.Fatalf("GetUserByGoogleID failed: %v", err)
	}
	if got.ID != user.ID || got.AuthProvider != model.AuthProviderGoogle || got.ProfilePicture != "https://img/p.png" {
		t.Errorf("unexpected linked user: %+v", got)
	}
}

func TestIntegrationUserRepository_CountByRole(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	mustCreateUser(t, ctx, repo, testutil.NewTestUser(t, model.RoleProvider))
	mustCreateUser(t, ctx, repo, testutil.NewTestUser(t, model.RoleProvider))
	mustCreateUser(t, ctx, repo, testutil.NewTestUser(t, model.RoleAdmin))

	counts, err := repo.CountUsersByRole(ctx)
	if err != nil {
		t.Fatalf("CountUsersByRole failed: %v", err)
	}
	want := map[model.Role]int64{model.RoleProvider: 2, model.RoleReviewer: 0, model.RoleAdmin: 1}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("role counts mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Language and Pricing Integration Tests
// ============================================================================

func TestIntegrationLanguageRepository_CreateWithPricing(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	lang := &model.Language{Code: "es", Name: "Spanish", NativeName: "Español", IsActive: true}
	pricing := &model.PricingRate{ProviderRatePerWord: 0.012, ReviewerRatePerSubmission: 2.2}
	if err := repo.CreateLanguage(ctx, lang, pricing); err != nil {
		t.Fatalf("CreateLanguage failed: %v", err)
	}

	got, err := repo.GetPricing(ctx, "es")
	if err != nil {
		t.Fatalf("GetPricing failed: %v", err)
	}
	if got.ProviderRatePerWord != 0.012 || got.ReviewerRatePerSubmission != 2.2 || got.Currency != "USD" {
		t.Errorf("unexpected pricing: %+v", got)
	}

	if err := repo.CreateLanguage(ctx, &model.Language{Code: "es", Name: "Dup"}, nil); !errors.Is(err, ErrLanguageExists) {
		t.Errorf("expected ErrLanguageExists, got %v", err)
	}
}

func TestIntegrationLanguageRepository_GetOrCreatePricing(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	p, err := repo.GetOrCreatePricing(ctx, "xx")
	if err != nil {
		t.Fatalf("GetOrCreatePricing failed: %v", err)
	}
	if p.ProviderRatePerWord != model.DefaultProviderRatePerWord || p.ReviewerRatePerSubmission != model.DefaultReviewerRatePerSubmission {
		t.Errorf("unexpected default pricing: %+v", p)
	}

	if _, err := repo.GetPricing(ctx, "xx"); err != nil {
		t.Errorf("default pricing should be persisted: %v", err)
	}
}

// ============================================================================
// Script Integration Tests
// ============================================================================

func TestIntegrationScriptRepository_Search(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	for _, content := range []string{"Hello world", "Weather today", "hello again"} {
		mustCreateScript(t, ctx, repo, testutil.NewTestScript(t, content))
	}
	inactive := testutil.NewTestScript(t, "hello hidden")
	inactive.IsActive = false
	mustCreateScript(t, ctx, repo, inactive)

	scripts, total, err := repo.SearchScripts(ctx, ScriptFilter{Query: "HELLO", ActiveOnly: true, Limit: 10})
	if err != nil {
		t.Fatalf("SearchScripts failed: %v", err)
	}
	if total != 2 || len(scripts) != 2 {
		t.Fatalf("expected 2 matches, got total=%d len=%d", total, len(scripts))
	}
	if scripts[0].Content != "hello again" {
		t.Errorf("expected newest first, got %q", scripts[0].Content)
	}

	page, total, err := repo.SearchScripts(ctx, ScriptFilter{ActiveOnly: true, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("SearchScripts paged failed: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("expected total 3 and 1 item, got total=%d len=%d", total, len(page))
	}
}

func TestIntegrationScriptRepository_DeleteCascade(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, model.RoleProvider)
	mustCreateUser(t, ctx, repo, user)
	script := testutil.NewTestScript(t, "one two three")
	mustCreateScript(t, ctx, repo, script)

	for _, audio := range []string{"a.webm", ""} {
		sub := &model.Submission{UserID: &user.ID, ScriptID: script.ID, LanguageCode: "en", AudioFilename: audio}
		if err := repo.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("CreateSubmission failed: %v", err)
		}
	}

	result, err := repo.DeleteScripts(ctx, []int64{script.ID})
	if err != nil {
		t.Fatalf("DeleteScripts failed: %v", err)
	}
	if result.DeletedScripts != 1 || result.DeletedSubmissions != 2 {
		t.Errorf("unexpected deletion summary: %+v", result)
	}
	if diff := cmp.Diff([]string{"a.webm"}, result.AudioFilenames); diff != "" {
		t.Errorf("audio filenames mismatch (-want +got):\n%s", diff)
	}

	if _, err := repo.GetScript(ctx, script.ID); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("expected ErrScriptNotFound, got %v", err)
	}
}

// ============================================================================
// Requirement and Submission Integration Tests
// ============================================================================

func TestIntegrationRequirementRepository_NextCandidate(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, model.RoleProvider)
	mustCreateUser(t, ctx, repo, user)

	first := testutil.NewTestScript(t, "first script")
	mustCreateScript(t, ctx, repo, first)
	second := testutil.NewTestScript(t, "second script")
	mustCreateScript(t, ctx, repo, second)

	for _, s := range []*model.Script{first, second} {
		reqs := []*model.VariantRequirement{{Gender: user.Gender, AgeGroup: user.AgeGroup, TargetTotal: 2, Enabled: true}}
		if err := repo.ReplaceRequirements(ctx, s.ID, reqs); err != nil {
			t.Fatalf("ReplaceRequirements failed: %v", err)
		}
	}

	candidate, err := repo.NextCandidateScript(ctx, user.ID, "en", user.Gender, user.AgeGroup)
	if err != nil {
		t.Fatalf("NextCandidateScript failed: %v", err)
	}
	if candidate.Script.ID != first.ID || candidate.Requirement.TargetTotal != 2 {
		t.Errorf("expected oldest script first, got %+v", candidate.Script)
	}

	sub := &model.Submission{UserID: &user.ID, ScriptID: first.ID, LanguageCode: "en"}
	if err := repo.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	candidate, err = repo.NextCandidateScript(ctx, user.ID, "en", user.Gender, user.AgeGroup)
	if err != nil {
		t.Fatalf("NextCandidateScript failed: %v", err)
	}
	if candidate.Script.ID != second.ID {
		t.Errorf("expected already-recorded script to be skipped, got %d", candidate.Script.ID)
	}

	if _, err := repo.NextCandidateScript(ctx, user.ID, "en", "male", user.AgeGroup); !errors.Is(err, ErrNoCandidateScript) {
		t.Errorf("expected ErrNoCandidateScript, got %v", err)
	}
}

func TestIntegrationSubmissionRepository_ReviewAndBilling(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	provider := testutil.NewTestUser(t, model.RoleProvider)
	mustCreateUser(t, ctx, repo, provider)
	reviewer := testutil.NewTestUser(t, model.RoleReviewer)
	mustCreateUser(t, ctx, repo, reviewer)
	script := testutil.NewTestScript(t, "a b c d")
	mustCreateScript(t, ctx, repo, script)

	sub := &model.Submission{
		UserID: &provider.ID, ScriptID: script.ID, LanguageCode: "en", WordCount: 4,
		ProviderGender: provider.Gender, ProviderAgeGroup: provider.AgeGroup,
	}
	if err := repo.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	now := time.Now().UTC()
	sub.Status = model.SubmissionApproved
	sub.ReviewedBy = &reviewer.ID
	sub.ReviewedAt = &now
	if err := repo.UpdateReview(ctx, sub); err != nil {
		t.Fatalf("UpdateReview failed: %v", err)
	}

	rate := 0.01
	words := 4
	if err := repo.CreateBillingRecord(ctx, &model.BillingRecord{
		UserID: provider.ID, SubmissionID: sub.ID, Amount: 0.04, RatePerWord: &rate,
		BillingType: model.BillingProvider, LanguageCode: "en", WordCount: &words,
	}); err != nil {
		t.Fatalf("CreateBillingRecord failed: %v", err)
	}

	total, err := repo.SumBilling(ctx, provider.ID, model.BillingProvider)
	if err != nil {
		t.Fatalf("SumBilling failed: %v", err)
	}
	if total != 0.04 {
		t.Errorf("SumBilling = %v, want 0.04", total)
	}

	approved, err := repo.CountApprovedForDemographic(ctx, script.ID, provider.Gender, provider.AgeGroup)
	if err != nil {
		t.Fatalf("CountApprovedForDemographic failed: %v", err)
	}
	if approved != 1 {
		t.Errorf("approved = %d, want 1", approved)
	}

	reviews, err := repo.ListSubmissions(ctx, SubmissionFilter{ReviewedBy: &reviewer.ID, Order: OrderReviewedDesc, Limit: 10})
	if err != nil {
		t.Fatalf("ListSubmissions failed: %v", err)
	}
	if len(reviews) != 1 || reviews[0].SubmitterName() != provider.FullName() {
		t.Errorf("unexpected reviews: %+v", reviews)
	}
}

func TestIntegrationSettingsRepository_Upsert(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	if err := repo.UpsertSetting(ctx, model.SettingShowEarnings, "false", ""); err != nil {
		t.Fatalf("UpsertSetting failed: %v", err)
	}
	s, err := repo.GetSetting(ctx, model.SettingShowEarnings)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if s.Value != "false" || s.Description == "" {
		t.Errorf("unexpected setting: %+v", s)
	}

	if _, err := repo.GetSetting(ctx, "missing"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func mustCreateUser(t *testing.T, ctx context.Context, repo *Repository, user *model.User) {
	t.Helper()
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
}

func mustCreateScript(t *testing.T, ctx context.Context, repo *Repository, script *model.Script) {
	t.Helper()
	if err := repo.CreateScript(ctx, script); err != nil {
		t.Fatalf("CreateScript failed: %v", err)
	}
}
