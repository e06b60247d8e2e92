package auth_test

import (
	"testing"

	"wisefido-ward/internal/auth"

	"github.com/stretchr/testify/require"
)

func TestSessions_FirstLoginSignsIn(t *testing.T) {
	state := auth.NewState()
	sessions := auth.NewSessions(state)

	require.False(t, state.SignedIn())

	sess := sessions.Create("maria", "Enfermeiro")
	require.NotEmpty(t, sess.Token)
	require.True(t, state.SignedIn())

	got, ok := sessions.Validate(sess.Token)
	require.True(t, ok)
	require.Equal(t, "maria", got.User)
	require.Equal(t, "Enfermeiro", got.Role)

	_, ok = sessions.Validate("bogus")
	require.False(t, ok)
}

func TestSessions_LastLogoutSignsOut(t *testing.T) {
	state := auth.NewState()
	sessions := auth.NewSessions(state)

	s1 := sessions.Create("maria", "Enfermeiro")
	s2 := sessions.Create("joao", "Médico")

	sessions.Delete(s1.Token)
	require.True(t, state.SignedIn())

	sessions.Delete(s2.Token)
	require.False(t, state.SignedIn())
}

func TestState_SubscribeNotifiesOnChange(t *testing.T) {
	state := auth.NewState()
	ch, cancel := state.Subscribe()
	defer cancel()

	state.Set(true)
	require.True(t, <-ch)

	// 重复置位不重复通知，只有变化才投递
	state.Set(true)
	state.Set(false)
	require.False(t, <-ch)
}
