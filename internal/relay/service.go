package relay

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/botrelay/internal/metrics"
)

// DefaultPublicBotPrefix marks bots that belong to the public pool.
const DefaultPublicBotPrefix = "ogsboti"

var requestValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names so messages match what callers sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Settings are the deployment-time knobs the service reads.
type Settings struct {
	// PublicBotPrefix is matched case-insensitively against bot nicknames.
	PublicBotPrefix string
	// PublicCategoryID is the category the public pool is associated with, if any.
	PublicCategoryID  string
	AllowedCategories []string
	// CredentialConfigured is false when no upstream credential was supplied;
	// every upstream-backed call then fails before touching the network.
	CredentialConfigured bool
}

// Service implements the relay operations on top of an Upstream and a
// RegistrationStore.
type Service struct {
	upstream Upstream
	store    RegistrationStore
	clock    Clock
	settings Settings
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewService wires a Service. The allowed category set is copied and frozen.
func NewService(
	upstream Upstream,
	store RegistrationStore,
	clock Clock,
	settings Settings,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.PublicBotPrefix == "" {
		settings.PublicBotPrefix = DefaultPublicBotPrefix
	}
	allowed := make(map[string]struct{}, len(settings.AllowedCategories))
	for _, id := range settings.AllowedCategories {
		allowed[id] = struct{}{}
	}
	settings.AllowedCategories = append([]string(nil), settings.AllowedCategories...)
	return &Service{
		upstream: upstream,
		store:    store,
		clock:    clock,
		settings: settings,
		allowed:  allowed,
		logger:   logger,
	}
}

// PublicCategoryID returns the configured category of the public pool.
func (s *Service) PublicCategoryID() string {
	return s.settings.PublicCategoryID
}

// ListPublicBots returns the upstream bots whose nickname starts with the
// public prefix, ignoring case, in upstream order.
func (s *Service) ListPublicBots(ctx context.Context) ([]Bot, error) {
	if err := s.requireCredential(); err != nil {
		return nil, err
	}
	bots, err := s.upstream.ListBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	prefix := strings.ToLower(s.settings.PublicBotPrefix)
	public := make([]Bot, 0, len(bots))
	for _, bot := range bots {
		if strings.HasPrefix(strings.ToLower(bot.Nickname), prefix) {
			public = append(public, bot)
		}
	}
	return public, nil
}

// ListAllowedCategories returns the upstream categories that are members of
// the allowed set.
func (s *Service) ListAllowedCategories(ctx context.Context) ([]Category, error) {
	if err := s.requireCredential(); err != nil {
		return nil, err
	}
	categories, err := s.upstream.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	filtered := make([]Category, 0, len(categories))
	for _, category := range categories {
		if _, ok := s.allowed[category.ID]; ok {
			filtered = append(filtered, category)
		}
	}
	return filtered, nil
}

// RegisterBot records that altAccount registered botName under categoryId.
// The bot must exist in the current upstream listing; the nickname match is
// case-sensitive. A repeated registration for the same pair overwrites the
// previous one.
func (s *Service) RegisterBot(ctx context.Context, req RegisterRequest) (Confirmation, error) {
	if err := validateRegisterRequest(req); err != nil {
		return Confirmation{}, err
	}
	if err := s.requireCredential(); err != nil {
		return Confirmation{}, err
	}
	bots, err := s.upstream.ListBots(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("list bots: %w", err)
	}
	bot, ok := findBot(bots, req.BotName)
	if !ok {
		metrics.ObserveRegistration("not_found")
		return Confirmation{}, NotFoundError("Bot not found with the given nickname.")
	}
	reg := Registration{
		AltAccount:   req.AltAccount,
		BotName:      req.BotName,
		CategoryID:   req.CategoryID,
		Bot:          bot.Clone(),
		RegisteredAt: s.clock.Now(),
	}
	if err := s.store.Put(ctx, reg); err != nil {
		return Confirmation{}, fmt.Errorf("store registration: %w", err)
	}
	metrics.ObserveRegistration("registered")
	s.logger.Info("bot registered",
		zap.String("alt_account", req.AltAccount),
		zap.String("bot", req.BotName),
		zap.String("category_id", req.CategoryID),
	)
	return Confirmation{
		Nickname:   bot.Nickname,
		Email:      bot.Email,
		AltAccount: req.AltAccount,
		CategoryID: req.CategoryID,
	}, nil
}

// CategorySettings returns one upstream category by id. Unlike
// ListAllowedCategories, the allowed set is not applied here.
func (s *Service) CategorySettings(ctx context.Context, categoryID string) (Category, error) {
	if categoryID == "" {
		return Category{}, ValidationError("categoryId query parameter is required.")
	}
	if err := s.requireCredential(); err != nil {
		return Category{}, err
	}
	categories, err := s.upstream.ListCategories(ctx)
	if err != nil {
		return Category{}, fmt.Errorf("list categories: %w", err)
	}
	for _, category := range categories {
		if category.ID == categoryID {
			return category, nil
		}
	}
	return Category{}, NotFoundError("Category not found.")
}

// Registrations lists what altAccount has registered so far.
func (s *Service) Registrations(ctx context.Context, altAccount string) ([]Registration, error) {
	if altAccount == "" {
		return nil, ValidationError("altAccount query parameter is required.")
	}
	regs, err := s.store.List(ctx, altAccount)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func (s *Service) requireCredential() error {
	if !s.settings.CredentialConfigured {
		return ConfigurationError("Server config error: upstream token not set.")
	}
	return nil
}

func validateRegisterRequest(req RegisterRequest) error {
	err := requestValidate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationError("All fields are required.")
	}
	missing := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		missing = append(missing, fe.Field())
	}
	return ValidationError(fmt.Sprintf("All fields are required (missing: %s).", strings.Join(missing, ", ")))
}

func findBot(bots []Bot, nickname string) (Bot, bool) {
	for _, bot := range bots {
		if bot.Nickname == nickname {
			return bot, true
		}
	}
	return Bot{}, false
}
