package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, payload})
	return nil
}

func TestMQTTAlerter(t *testing.T) {
	pub := &fakePublisher{}
	a := NewMQTTAlerter(pub, "driveguardian")
	a.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	src := AlertSource{ClientID: "c1", Driver: "jane"}

	require.NoError(t, a.Start(src))
	require.NoError(t, a.Stop(src))
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "driveguardian/c1/alert", pub.msgs[0].topic)

	var msg alertMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &msg))
	assert.True(t, msg.Active)
	assert.Equal(t, "jane", msg.Driver)
	require.NoError(t, json.Unmarshal(pub.msgs[1].payload, &msg))
	assert.False(t, msg.Active)
}

func TestMultiJoinsErrors(t *testing.T) {
	var got []bool
	fn := AlerterFunc(func(_ AlertSource, active bool) error {
		got = append(got, active)
		return nil
	})
	broken := NewMQTTAlerter(&fakePublisher{err: errors.New("broker gone")}, "p")

	m := Multi{NewLogAlerter(zap.NewNop()), broken, fn}
	err := m.Start(AlertSource{ClientID: "c1"})
	assert.ErrorContains(t, err, "broker gone")
	assert.NoError(t, Multi{fn}.Stop(AlertSource{}))
	assert.Equal(t, []bool{true, false}, got, "later alerters still run")
}
