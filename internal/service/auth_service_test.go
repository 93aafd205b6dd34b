package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eaaaarl/iChat-Web/internal/domain"
	"github.com/eaaaarl/iChat-Web/internal/repository/memory"
	"github.com/eaaaarl/iChat-Web/internal/service"
)

func register(t *testing.T, svc *service.AuthService, email, username string) *service.AuthResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), service.RegisterInput{
		Email:       email,
		Username:    username,
		DisplayName: "Display " + username,
		Password:    "Sup3rSecret",
	})
	require.NoError(t, err)
	return resp
}

func TestAuthService_RegisterLoginAndToken(t *testing.T) {
	req := require.New(t)
	svc := service.NewAuthService(memory.NewUserRepo(), "secret", time.Hour)

	reg := register(t, svc, "ana@example.com", "ana")
	req.Equal(domain.StatusOffline, reg.User.Status)
	req.NotEmpty(reg.User.PasswordHash)
	req.NotEqual("Sup3rSecret", reg.User.PasswordHash)

	login, err := svc.Login(context.Background(), service.LoginInput{Email: "ana@example.com", Password: "Sup3rSecret"})
	req.NoError(err)
	req.Equal(reg.User.ID, login.User.ID)

	id, err := svc.ParseToken(login.AccessToken)
	req.NoError(err)
	req.Equal(reg.User.ID, id)
}

func TestAuthService_RejectsDuplicatesAndBadPasswords(t *testing.T) {
	req := require.New(t)
	svc := service.NewAuthService(memory.NewUserRepo(), "secret", time.Hour)
	register(t, svc, "ana@example.com", "ana")

	_, err := svc.Register(context.Background(), service.RegisterInput{Email: "ana@example.com", Username: "other", Password: "Sup3rSecret"})
	req.ErrorIs(err, service.ErrEmailTaken)
	_, err = svc.Register(context.Background(), service.RegisterInput{Email: "new@example.com", Username: "ana", Password: "Sup3rSecret"})
	req.ErrorIs(err, service.ErrUsernameTaken)
	_, err = svc.Login(context.Background(), service.LoginInput{Email: "ana@example.com", Password: "wrong"})
	req.ErrorIs(err, service.ErrInvalidCreds)
	_, err = svc.Login(context.Background(), service.LoginInput{Email: "nobody@example.com", Password: "Sup3rSecret"})
	req.ErrorIs(err, service.ErrInvalidCreds)
}

func TestParseToken_RejectsForeignSecret(t *testing.T) {
	issuer := service.NewAuthService(memory.NewUserRepo(), "secret", time.Hour)
	reg := register(t, issuer, "ana@example.com", "ana")

	_, err := service.ParseToken(reg.AccessToken, []byte("another secret"))

	require.Error(t, err)
}

func TestAuthService_LogoutMarksOffline(t *testing.T) {
	req := require.New(t)
	users := memory.NewUserRepo()
	svc := service.NewAuthService(users, "secret", time.Hour)
	reg := register(t, svc, "ana@example.com", "ana")
	profiles := service.NewProfileService(users)
	_, err := profiles.SetPresence(context.Background(), reg.User.ID, domain.StatusOnline)
	req.NoError(err)

	req.NoError(svc.Logout(context.Background(), reg.User.ID))

	u, err := users.GetByID(context.Background(), reg.User.ID)
	req.NoError(err)
	req.Equal(domain.StatusOffline, u.Status)
}

func TestProfileService_ListExcludesCaller(t *testing.T) {
	req := require.New(t)
	users := memory.NewUserRepo()
	svc := service.NewAuthService(users, "secret", time.Hour)
	ana := register(t, svc, "ana@example.com", "ana")
	register(t, svc, "ben@example.com", "ben")

	list, err := service.NewProfileService(users).List(context.Background(), ana.User.ID)
	req.NoError(err)

	req.Len(list, 1)
	req.Equal("ben", list[0].Username)
}
