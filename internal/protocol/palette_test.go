package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColorForJoinIndex_FirstController(t *testing.T) {
	require.Equal(t, "#38bdf8", ColorForJoinIndex(0))
}

func TestColorForJoinIndex_WrapsAtPaletteSize(t *testing.T) {
	require.Equal(t, ColorForJoinIndex(0), ColorForJoinIndex(20))
	require.Equal(t, ColorForJoinIndex(1), ColorForJoinIndex(21))
}

func TestNormalizeColor_LowercasesValidHex(t *testing.T) {
	require.Equal(t, "#abcdef", NormalizeColor("#ABCDEF"))
}

func TestNormalizeColor_FallsBackOnMalformed(t *testing.T) {
	require.Equal(t, palette[0], NormalizeColor("not-a-color"))
	require.Equal(t, palette[0], NormalizeColor("#zzzzzz"))
	require.Equal(t, palette[0], NormalizeColor("#fff"))
}
