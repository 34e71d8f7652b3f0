package measure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const twoPermSrc = `
permanent acked: Num = 0;
permanent rtt: Num = 0;
fold (ev, state) {
	acked = acked + Ack;
	rtt = Rtt;
}
`

func TestCompileDeterminism(t *testing.T) {
	bin1, err := Compile(twoPermSrc)
	require.NoError(t, err)
	bin2, err := Compile(twoPermSrc)
	require.NoError(t, err)

	require.Equal(t, bin1.Instructions, bin2.Instructions)
	require.Equal(t, bin1.Scope.regs, bin2.Scope.regs)
	require.Equal(t, bin1.Scope.numPermanents, bin2.Scope.numPermanents)
}

func TestPermanentIndicesDenseInDeclarationOrder(t *testing.T) {
	bin, err := Compile(twoPermSrc)
	require.NoError(t, err)

	ackedIdx, ok := bin.Scope.PermanentIndex("acked")
	require.True(t, ok)
	require.Equal(t, 0, ackedIdx)

	rttIdx, ok := bin.Scope.PermanentIndex("rtt")
	require.True(t, ok)
	require.Equal(t, 1, rttIdx)

	require.Equal(t, 2, bin.Scope.NumPermanents())
}

func TestScopeRejectsNonPermanentLookup(t *testing.T) {
	src := `
permanent acked: Num = 0;
fold (ev, state) {
	acked = acked + Ack;
	scratch = Rtt;
}
`
	bin, err := Compile(src)
	require.NoError(t, err)

	_, ok := bin.Scope.PermanentIndex("scratch")
	require.False(t, ok, "temporary must not resolve as a permanent")

	_, ok = bin.Scope.PermanentIndex("Rtt")
	require.False(t, ok, "implicit must not resolve as a permanent")

	_, ok = bin.Scope.PermanentIndex("missing")
	require.False(t, ok)
}

func TestUnknownIdentifier(t *testing.T) {
	src := `
fold (ev, state) {
	x = nonsense;
}
`
	_, err := Compile(src)
	require.Error(t, err)
	var ue *UnknownIdentifierError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, "nonsense", ue.Name)
}

func TestTooManyPermanents(t *testing.T) {
	src := "permanent p0: Num = 0;\n"
	for i := 1; i <= MaxPermanents; i++ {
		src += "permanent p" + itoa(i) + ": Num = 0;\n"
	}
	src += "fold (ev, state) { p0 = p0; }\n"

	_, err := Compile(src)
	require.Error(t, err)
	var te *TooManyPermanentsError
	require.True(t, errors.As(err, &te))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Compile("permanent x Num;")
	require.Error(t, err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 12, pe.Pos) // "Num", where ":" was expected
}

func TestCheckOperandTypeMismatch(t *testing.T) {
	// The current grammar only produces TypeNum operands, so exercise the
	// type-checking entry point directly to prove the error path works now
	// that it has two hypothetical distinct types.
	const typeBogus Type = 99
	err := checkOperandType(BinAdd, TypeNum, typeBogus)
	require.Error(t, err)
	var tm *TypeMismatchError
	require.True(t, errors.As(err, &tm))
	require.Equal(t, "+", tm.Op)
}

// TestInstallAndInterpret is scenario 6 of §8: install a measurement
// declaring permanents acked, rtt in that order; receive a report with
// fields [5, 17]; expect get_field("acked") == 5, get_field("rtt") == 17,
// get_field("missing") absent.
func TestInstallAndInterpret(t *testing.T) {
	bin, err := Compile(twoPermSrc)
	require.NoError(t, err)

	fields := []uint64{5, 17}

	get := func(name string) (uint64, bool) {
		idx, ok := bin.Scope.PermanentIndex(name)
		if !ok || idx >= len(fields) {
			return 0, false
		}
		return fields[idx], true
	}

	v, ok := get("acked")
	require.True(t, ok)
	require.Equal(t, uint64(5), v)

	v, ok = get("rtt")
	require.True(t, ok)
	require.Equal(t, uint64(17), v)

	_, ok = get("missing")
	require.False(t, ok)
}

func TestFieldBeyondReportLengthIsAbsent(t *testing.T) {
	bin, err := Compile(twoPermSrc)
	require.NoError(t, err)

	idx, ok := bin.Scope.PermanentIndex("rtt")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	shortReport := []uint64{5} // only index 0 present
	require.GreaterOrEqual(t, idx, len(shortReport))
}
