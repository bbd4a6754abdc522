package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcessFirstTimeOnly(t *testing.T) {
	d := New(time.Minute, 100)
	id := Key("serieA/sa/PO-001", []byte(`{"ph": 7.2}`))

	assert.True(t, d.ShouldProcess(id))
	assert.False(t, d.ShouldProcess(id))
}

func TestDistinctPayloadsDistinctKeys(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess(Key("serieA/sa/PO-001", []byte(`{"ph": 7.2}`))))
	assert.True(t, d.ShouldProcess(Key("serieA/sa/PO-001", []byte(`{"ph": 7.3}`))))
}

func TestSamePayloadDistinctTopicsDistinctKeys(t *testing.T) {
	d := New(time.Minute, 100)
	payload := []byte(`{"ph": 7.2}`)

	assert.NotEqual(t, Key("serieA/sa/PO-001", payload), Key("serieA/sa/PO-002", payload))
	assert.True(t, d.ShouldProcess(Key("serieA/sa/PO-001", payload)))
	assert.True(t, d.ShouldProcess(Key("serieA/sa/PO-002", payload)))
}

func TestEmptyIDAlwaysProcessed(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
}

func TestExpiredEntryProcessedAgain(t *testing.T) {
	d := New(time.Millisecond, 100)

	assert.True(t, d.ShouldProcess("x"))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, d.ShouldProcess("x"))
}

func TestCapacityBounded(t *testing.T) {
	d := New(time.Hour, 10)

	for i := 0; i < 100; i++ {
		d.ShouldProcess(fmt.Sprintf("id-%d", i))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.LessOrEqual(t, len(d.seen), 11)
}
