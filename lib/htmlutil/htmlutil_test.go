package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	require.Equal(t, "PHY101 Physics", CleanText("  PHY101 \t\n  Physics  "))
	require.Equal(t, "", CleanText(" \t\n "))
}

func TestFirstLine(t *testing.T) {
	require.Equal(t, "Monday", FirstLine("\n  Monday\n  02-12-2024\n"))
	require.Equal(t, "", FirstLine("\n \n"))
}

func TestAtoiOr0(t *testing.T) {
	require.Equal(t, 42, AtoiOr0(" 42 "))
	require.Equal(t, 0, AtoiOr0("-"))
	require.Equal(t, 0, AtoiOr0(""))
}
