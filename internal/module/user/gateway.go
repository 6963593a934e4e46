package user

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/simp-lee/userdir/internal/domain"
	"github.com/simp-lee/userdir/internal/transport"
)

// avatarPoolSize is the number of distinct images in the avatar pool.
const avatarPoolSize = 70

// Result messages attached to successful gateway calls.
const (
	msgUsersFetched = "users fetched successfully"
	msgUserFetched  = "user fetched successfully"
)

// GatewayConfig configures the user gateway.
type GatewayConfig struct {
	APIBaseURL    string
	AvatarBaseURL string
	Timeout       time.Duration
}

// userGateway implements domain.UserGateway on top of a transport.Transport.
type userGateway struct {
	t            transport.Transport
	avatarPrefix string
	logger       *slog.Logger
}

// NewUserGateway creates a UserGateway. When t is nil an HTTP client is built
// from cfg.
func NewUserGateway(cfg GatewayConfig, t transport.Transport, logger *slog.Logger) domain.UserGateway {
	if logger == nil {
		logger = slog.Default()
	}
	if t == nil {
		t = transport.NewClient(transport.Config{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	}
	return &userGateway{
		t:            t,
		avatarPrefix: cfg.AvatarBaseURL,
		logger:       logger.With(slog.String("component", "user_gateway")),
	}
}

// FetchAll retrieves every user and assigns avatars by result position.
func (g *userGateway) FetchAll(ctx context.Context) (*domain.GatewayResult[[]domain.User], error) {
	var users []domain.User
	status, err := g.t.Get(ctx, "/users", &users)
	if err != nil {
		gwErr := domain.AsGatewayError(err)
		g.logger.ErrorContext(ctx, "fetch users failed",
			slog.String("error", gwErr.Message),
			slog.Int("status", gwErr.Status),
			slog.String("code", gwErr.Code),
		)
		return nil, gwErr
	}

	decorated := make([]domain.User, len(users))
	for i, u := range users {
		u.Avatar = g.avatarURL(i)
		decorated[i] = u
	}

	return &domain.GatewayResult[[]domain.User]{
		Data:    decorated,
		Status:  status,
		Message: msgUsersFetched,
	}, nil
}

// FetchByID retrieves a single user. There is no result position, so the
// avatar is derived from the requested id.
func (g *userGateway) FetchByID(ctx context.Context, id int) (*domain.GatewayResult[domain.User], error) {
	var u domain.User
	status, err := g.t.Get(ctx, "/users/"+strconv.Itoa(id), &u)
	if err != nil {
		gwErr := domain.AsGatewayError(err)
		g.logger.ErrorContext(ctx, "fetch user failed",
			slog.Int("id", id),
			slog.String("error", gwErr.Message),
			slog.Int("status", gwErr.Status),
			slog.String("code", gwErr.Code),
		)
		return nil, gwErr
	}

	u.Avatar = g.avatarURL(id)
	return &domain.GatewayResult[domain.User]{
		Data:    u,
		Status:  status,
		Message: msgUserFetched,
	}, nil
}

// avatarURL maps n onto the 1-based avatar pool.
func (g *userGateway) avatarURL(n int) string {
	idx := n % avatarPoolSize
	if idx < 0 {
		idx += avatarPoolSize
	}
	return g.avatarPrefix + strconv.Itoa(idx+1)
}
