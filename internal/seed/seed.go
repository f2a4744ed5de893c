// Package seed loads the demo dataset: accounts for every role and
// demographic, a handful of English scripts, and the supported languages
// with their pricing.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

//go:embed demo.yaml
var demoYAML []byte

// Dataset is the decoded demo fixture.
type Dataset struct {
	Password  string         `yaml:"password"`
	Users     []UserSeed     `yaml:"users"`
	Scripts   []ScriptSeed   `yaml:"scripts"`
	Languages []LanguageSeed `yaml:"languages"`
}

// UserSeed is one demo account.
type UserSeed struct {
	Email     string     `yaml:"email"`
	FirstName string     `yaml:"first_name"`
	LastName  string     `yaml:"last_name"`
	Role      model.Role `yaml:"role"`
	Gender    string     `yaml:"gender"`
	AgeGroup  string     `yaml:"age_group"`
}

// ScriptSeed is one demo script.
type ScriptSeed struct {
	Language string `yaml:"language"`
	Content  string `yaml:"content"`
}

// LanguageSeed is one language with its pricing.
type LanguageSeed struct {
	Code         string  `yaml:"code"`
	Name         string  `yaml:"name"`
	NativeName   string  `yaml:"native_name"`
	ProviderRate float64 `yaml:"provider_rate"`
	ReviewerRate float64 `yaml:"reviewer_rate"`
}

// Demo returns the embedded dataset.
func Demo() (*Dataset, error) {
	return Parse(demoYAML)
}

// Parse decodes and checks a dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode seed data: %w", err)
	}
	if ds.Password == "" {
		return nil, errors.New("seed data: password is required")
	}
	for i, u := range ds.Users {
		if u.Email == "" || !u.Role.Valid() {
			return nil, fmt.Errorf("seed data: user %d needs an email and a valid role", i)
		}
	}
	for i, l := range ds.Languages {
		if l.Code == "" || l.Name == "" {
			return nil, fmt.Errorf("seed data: language %d needs a code and a name", i)
		}
	}
	return &ds, nil
}

// Emails lists the seeded account addresses.
func (ds *Dataset) Emails() []string {
	emails := make([]string, 0, len(ds.Users))
	for _, u := range ds.Users {
		emails = append(emails, u.Email)
	}
	return emails
}

// Options controls a seed run.
type Options struct {
	// Force removes the demo accounts before recreating them.
	Force bool
}

// Summary counts what a run created.
type Summary struct {
	UsersDeleted     int64
	UsersCreated     int
	ScriptsCreated   int
	LanguagesCreated int
}

// Seeder writes a dataset through the repository.
type Seeder struct {
	repo    *repository.Repository
	dataset *Dataset
	logger  *slog.Logger
}

// New creates a Seeder for ds.
func New(repo *repository.Repository, ds *Dataset, logger *slog.Logger) *Seeder {
	return &Seeder{repo: repo, dataset: ds, logger: logger.With("component", "seed")}
}

// Run inserts whatever is missing. Existing users and languages are left
// untouched and scripts are matched by content and language.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{}

	if opts.Force {
		n, err := s.repo.DeleteUsersByEmail(ctx, s.dataset.Emails())
		if err != nil {
			return nil, err
		}
		sum.UsersDeleted = n
		s.logger.Info("demo_users_deleted", "count", n)
	}

	hash, err := auth.HashPassword(s.dataset.Password)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	for _, u := range s.dataset.Users {
		created, err := s.createUser(ctx, u, hash)
		if err != nil {
			return sum, err
		}
		if created {
			sum.UsersCreated++
		}
	}

	for _, sc := range s.dataset.Scripts {
		exists, err := s.repo.ScriptExistsByContent(ctx, sc.Content, sc.Language)
		if err != nil {
			return sum, err
		}
		if exists {
			continue
		}
		script := &model.Script{Content: sc.Content, Language: sc.Language, IsActive: true}
		if err := s.repo.CreateScript(ctx, script); err != nil {
			return sum, err
		}
		sum.ScriptsCreated++
	}

	for _, l := range s.dataset.Languages {
		created, err := s.createLanguage(ctx, l)
		if err != nil {
			return sum, err
		}
		if created {
			sum.LanguagesCreated++
		}
	}

	s.logger.Info("seed_completed",
		"users_created", sum.UsersCreated,
		"scripts_created", sum.ScriptsCreated,
		"languages_created", sum.LanguagesCreated,
	)
	return sum, nil
}

func (s *Seeder) createUser(ctx context.Context, u UserSeed, hash string) (bool, error) {
	_, err := s.repo.GetUserByEmail(ctx, u.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, err
	}

	user := &model.User{
		Email:        u.Email,
		PasswordHash: &hash,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         u.Role,
		Gender:       u.Gender,
		AgeGroup:     u.AgeGroup,
		AuthProvider: model.AuthProviderLocal,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Seeder) createLanguage(ctx context.Context, l LanguageSeed) (bool, error) {
	lang := &model.Language{Code: l.Code, Name: l.Name, NativeName: l.NativeName, IsActive: true}
	pricing := &model.PricingRate{
		LanguageCode:              l.Code,
		ProviderRatePerWord:       l.ProviderRate,
		ReviewerRatePerSubmission: l.ReviewerRate,
		Currency:                  model.DefaultCurrency,
	}
	err := s.repo.CreateLanguage(ctx, lang, pricing)
	if errors.Is(err, repository.ErrLanguageExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
