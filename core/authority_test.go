package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityRanks_Ordering(t *testing.T) {
	assert.Less(t, AuthorityAutoEngine.Rank(), AuthorityHumanOperator.Rank())
	assert.Less(t, AuthorityHumanOperator.Rank(), AuthorityOnCallSRE.Rank())
	assert.Less(t, AuthorityOnCallSRE.Rank(), AuthorityEmergencyOverride.Rank())
	assert.Zero(t, AuthorityType("JANITOR").Rank())
}

func TestAuthorityContext_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		ctx      AuthorityContext
		wantErr  bool
		wantCode string
	}{
		{"valid operator", AuthorityContext{Type: AuthorityHumanOperator, ActorID: "op-1"}, false, ""},
		{"unknown type", AuthorityContext{Type: "ROOT", ActorID: "x"}, true, ""},
		{"missing actor", AuthorityContext{Type: AuthorityOnCallSRE}, true, ""},
		{
			"override without justification",
			AuthorityContext{Type: AuthorityEmergencyOverride, ActorID: "admin"},
			true, CodeMissingJustification,
		},
		{
			"override with short justification",
			AuthorityContext{Type: AuthorityEmergencyOverride, ActorID: "admin", Justification: "because"},
			true, CodeMissingJustification,
		},
		{
			"override with adequate justification",
			AuthorityContext{Type: AuthorityEmergencyOverride, ActorID: "admin", Justification: strings.Repeat("x", MinJustificationLength)},
			false, "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ctx.Validate()
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tc.wantCode != "" {
				br, ok := IsBusinessRejection(err)
				require.True(t, ok)
				assert.Equal(t, tc.wantCode, br.Code)
			}
		})
	}
}

func TestAuthorityContext_CanActOnSeverity(t *testing.T) {
	auto := AuthorityContext{Type: AuthorityAutoEngine, ActorID: "engine"}
	assert.True(t, auto.CanActOnSeverity(SeverityHigh))
	assert.True(t, auto.CanActOnSeverity(SeverityLow))
	assert.False(t, auto.CanActOnSeverity(SeverityCritical))

	sre := AuthorityContext{Type: AuthorityOnCallSRE, ActorID: "sre-1"}
	assert.True(t, sre.CanActOnSeverity(SeverityCritical))
}
