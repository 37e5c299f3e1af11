//go:build linux

package evdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keebie/internal/ledger"
)

func record(typ, code uint16, value int32) []byte {
	rec := make([]byte, eventSize)
	encodeEvent(rec, typ, code, value)
	return rec
}

func TestAppendKeyEvents(t *testing.T) {
	var data []byte
	data = append(data, record(evKey, 30, keyDown)...)
	data = append(data, record(evSyn, synReport, 0)...)
	data = append(data, record(evKey, 30, keyRepeat)...)
	data = append(data, record(0x04, 0x04, 458756)...) // EV_MSC scan code
	data = append(data, record(evKey, 31, keyDown)...)
	data = append(data, record(evKey, 30, keyUp)...)

	got := appendKeyEvents(nil, data)
	assert.Equal(t, []ledger.Event{
		{Key: "KEY_A", Down: true},
		{Key: "KEY_S", Down: true},
		{Key: "KEY_A", Down: false},
	}, got)
}

func TestAppendKeyEventsIgnoresPartialRecord(t *testing.T) {
	data := record(evKey, 1, keyDown)
	data = append(data, record(evKey, 2, keyDown)[:eventSize-3]...)

	got := appendKeyEvents(nil, data)
	require.Len(t, got, 1)
	assert.Equal(t, "KEY_ESC", got[0].Key)
}

func TestIoctlEncoding(t *testing.T) {
	assert.Equal(t, uintptr(0x40044590), evioCGrab())
	assert.Equal(t, uintptr(0x80024531), evioCGBit(evLed, 2))
	assert.Equal(t, uintptr(0x81004506), evioCGName(256))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/dev/input/keebie-does-not-exist")
	assert.Error(t, err)
}
