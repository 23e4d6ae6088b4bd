package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(ctx context.Context, events ...Event) error {
	r.got = append(r.got, events...)
	return r.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("broker down")}
	f := Fanout{a, nil, b}

	err := f.Publish(context.Background(), Event{Type: OrderSynced, EntityID: "o1"}, Event{Type: SessionCreated, EntityID: "s1"})
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, a.got, 2)
	assert.Len(t, b.got, 2)
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, Fanout{}.Publish(context.Background(), Event{Type: OrderSynced}))
}
