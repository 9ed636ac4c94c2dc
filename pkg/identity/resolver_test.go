package identity_test

import (
	"testing"

	"tradetalk/pkg/identity"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/models"
	"tradetalk/pkg/store"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()+"/db"))
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-u", DisplayName: "Uma"}))
	require.NoError(t, store.SaveAccount(models.Account{ID: "acct-k", DisplayName: "Kai"}))
	require.NoError(t, store.SaveContractor(models.Contractor{ID: "ctr-k", AccountID: "acct-k", BusinessName: "Kai Electric"}))
}

func TestResolveProbesAccountThenContractor(t *testing.T) {
	setup(t)

	r, err := identity.Resolve(models.Participant{ID: "acct-u"})
	require.NoError(t, err)
	require.Equal(t, models.KindUser, r.Kind)
	require.Equal(t, "acct-u", r.AccountID)
	require.Equal(t, "Uma", r.DisplayName)

	r, err = identity.Resolve(models.Participant{ID: "ctr-k"})
	require.NoError(t, err)
	require.Equal(t, models.KindContractor, r.Kind)
	require.Equal(t, "acct-k", r.AccountID, "contractor resolves to its owning account")
	require.Equal(t, "Kai Electric", r.DisplayName)

	_, err = identity.Resolve(models.Participant{ID: "nobody"})
	require.True(t, store.IsNotFound(err))
}

func TestResolveExplicitKindSkipsProbe(t *testing.T) {
	setup(t)

	// explicit kind does not fall through to the other directory
	_, err := identity.Resolve(models.Participant{Kind: models.KindUser, ID: "ctr-k"})
	require.True(t, store.IsNotFound(err))

	_, err = identity.Resolve(models.Participant{Kind: models.KindContractor, ID: "acct-u"})
	require.True(t, store.IsNotFound(err))
}

func TestResolveCallerSendIdentity(t *testing.T) {
	setup(t)

	// plain user sends as the account
	r, err := identity.ResolveCallerSendIdentity("acct-u", models.KindUser)
	require.NoError(t, err)
	require.Equal(t, "acct-u", r.ID)

	// contractor role sends as the owned profile
	r, err = identity.ResolveCallerSendIdentity("acct-k", models.KindContractor)
	require.NoError(t, err)
	require.Equal(t, "ctr-k", r.ID)
	require.Equal(t, "acct-k", r.AccountID)

	// contractor role without a profile is a sender-not-found
	_, err = identity.ResolveCallerSendIdentity("acct-u", models.KindContractor)
	require.ErrorIs(t, err, store.ErrSenderNotFound)
}

func TestCandidateIDs(t *testing.T) {
	setup(t)

	ids, err := identity.CandidateIDs("acct-u")
	require.NoError(t, err)
	require.Equal(t, []string{"acct-u"}, ids)

	ids, err = identity.CandidateIDs("acct-k")
	require.NoError(t, err)
	require.Equal(t, []string{"acct-k", "ctr-k"}, ids)
}
