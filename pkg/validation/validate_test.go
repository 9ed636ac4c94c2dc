package validation

import (
	"strings"
	"testing"

	"tradetalk/pkg/models"

	"github.com/stretchr/testify/require"
)

func TestValidateText(t *testing.T) {
	require.NoError(t, ValidateText("hello"))
	require.Error(t, ValidateText(""))
	require.Error(t, ValidateText("   \n\t"))
	require.Error(t, ValidateText(strings.Repeat("x", rules.MaxTextBytes+1)))
	require.NoError(t, ValidateText(strings.Repeat("x", rules.MaxTextBytes)))
}

func TestValidateRef(t *testing.T) {
	require.NoError(t, ValidateRef(models.Participant{ID: "acct-1"}))
	require.NoError(t, ValidateRef(models.Participant{Kind: models.KindUser, ID: "acct-1"}))
	require.NoError(t, ValidateRef(models.Participant{Kind: models.KindContractor, ID: "ctr-1"}))

	require.Error(t, ValidateRef(models.Participant{}))
	require.Error(t, ValidateRef(models.Participant{ID: "  "}))
	require.Error(t, ValidateRef(models.Participant{Kind: "robot", ID: "x"}))
	require.Error(t, ValidateRef(models.Participant{ID: strings.Repeat("a", rules.MaxIDBytes+1)}))
}

func TestSetRulesZeroKeepsCurrent(t *testing.T) {
	old := rules
	t.Cleanup(func() { rules = old })

	SetRules(Rules{MaxTextBytes: 5})
	require.Equal(t, 5, rules.MaxTextBytes)
	require.Equal(t, old.MaxIDBytes, rules.MaxIDBytes)

	SetRules(Rules{})
	require.Equal(t, 5, rules.MaxTextBytes)

	require.Error(t, ValidateText("too long now"))
	require.NoError(t, ValidateText("ok"))
}
