package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(id, dep, client, iss string) ToolDeployment {
	return ToolDeployment{
		ID: id, DeploymentID: dep, ClientID: client, Issuer: iss,
		OIDCAuthenticationEndpoint: iss + "/auth", JWKSEndpoint: iss + "/jwks",
		PrivateKey: "pem", SignatureAlgorithm: "RS256",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestSQLStore_LookupsKeepRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openDB(t))

	// ids sort opposite to insertion order so ordering cannot come from the id
	require.NoError(t, s.Create(ctx, row("c", "dep-1", "client-1", "https://lms.example")))
	require.NoError(t, s.Create(ctx, row("b", "dep-2", "client-2", "https://lms.example")))
	require.NoError(t, s.Create(ctx, row("a", "dep-3", "client-2", "https://lms.example")))
	require.NoError(t, s.Create(ctx, row("z", "dep-1", "client-1", "https://other.example")))

	byIssuer, err := s.FindByIssuer(ctx, "https://lms.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(byIssuer))

	byClient, err := s.FindByClientIDIssuer(ctx, "client-2", "https://lms.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(byClient))

	td, err := s.FindByDeploymentClientIssuer(ctx, "dep-1", "client-1", "https://other.example")
	require.NoError(t, err)
	require.NotNil(t, td)
	assert.Equal(t, "z", td.ID)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "z"}, ids(all))
}

func TestSQLStore_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openDB(t))
	in := row("id-1", "dep-1", "client-1", "https://lms.example")
	in.ApplicationKey, in.ApplicationSecret = "k", "s"
	require.NoError(t, s.Create(ctx, in))

	got, err := s.FindByID(ctx, "id-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in, *got)
}

func TestSQLStore_MissesAreEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openDB(t))

	td, err := s.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, td)

	td, err = s.FindByDeploymentClientIssuer(ctx, "d", "c", "i")
	require.NoError(t, err)
	assert.Nil(t, td)

	list, err := s.FindByIssuer(ctx, "https://lms.example")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLStore_DuplicateTriple(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openDB(t))
	require.NoError(t, s.Create(ctx, row("a", "dep-1", "client-1", "https://lms.example")))
	err := s.Create(ctx, row("b", "dep-1", "client-1", "https://lms.example"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSQLStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewSQLStore(openDB(t))
	require.NoError(t, s.Create(ctx, row("a", "dep-1", "client-1", "https://lms.example")))
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))

	td, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, td)
}

func ids(list []ToolDeployment) []string {
	out := make([]string, 0, len(list))
	for _, td := range list {
		out = append(out, td.ID)
	}
	return out
}
