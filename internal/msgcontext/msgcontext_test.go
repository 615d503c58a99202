package msgcontext

import (
	"context"
	"errors"
	"testing"

	"github.com/nalgeon/be"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
	"github.com/krishhrana/whatsapp-mcp/internal/store/storetest"
)

func ids(msgs []store.Message) []string {
	out := []string{}
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func seedTimeline(t *testing.T) *store.Reader {
	t.Helper()
	db := storetest.New(t)
	storetest.Chat(t, db, "c@s.whatsapp.net", "C", storetest.At(4))
	storetest.Chat(t, db, "other@g.us", "Other", storetest.At(2))
	for i, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		storetest.Message(t, db, store.Message{ID: id, ChatJID: "c@s.whatsapp.net", SenderID: "c", Content: id, Timestamp: storetest.At(i)})
	}
	storetest.Message(t, db, store.Message{ID: "t3", ChatJID: "other@g.us", SenderID: "x", Content: "same id elsewhere", Timestamp: storetest.At(-10)})
	storetest.Message(t, db, store.Message{ID: "o2", ChatJID: "other@g.us", SenderID: "x", Timestamp: storetest.At(2)})
	return storetest.Reader(t, db)
}

func TestAssembleOrdersNearestFirst(t *testing.T) {
	r := seedTimeline(t)

	c, err := Assemble(context.Background(), r, "t3", "c@s.whatsapp.net", 2, 2)
	be.Err(t, err, nil)
	be.Equal(t, c.Message.ID, "t3")
	be.Equal(t, ids(c.Before), []string{"t2", "t1"})
	be.Equal(t, ids(c.After), []string{"t4", "t5"})
}

func TestAssembleTruncatesAtChatEdges(t *testing.T) {
	r := seedTimeline(t)

	c, err := Assemble(context.Background(), r, "t1", "c@s.whatsapp.net", 5, 1)
	be.Err(t, err, nil)
	be.Equal(t, ids(c.Before), []string{})
	be.Equal(t, ids(c.After), []string{"t2"})
}

func TestAssembleZeroCounts(t *testing.T) {
	r := seedTimeline(t)

	c, err := Assemble(context.Background(), r, "t3", "c@s.whatsapp.net", 0, 0)
	be.Err(t, err, nil)
	be.Equal(t, len(c.Before), 0)
	be.Equal(t, len(c.After), 0)
}

func TestAssembleBareIDPicksLatest(t *testing.T) {
	r := seedTimeline(t)

	c, err := Assemble(context.Background(), r, "t3", "", 1, 1)
	be.Err(t, err, nil)
	be.Equal(t, c.Message.ChatJID, "c@s.whatsapp.net")
}

func TestAssembleScopedToOtherChat(t *testing.T) {
	r := seedTimeline(t)

	c, err := Assemble(context.Background(), r, "t3", "other@g.us", 1, 1)
	be.Err(t, err, nil)
	be.Equal(t, c.Message.Content, "same id elsewhere")
	be.Equal(t, ids(c.After), []string{"o2"})
}

func TestAssembleErrors(t *testing.T) {
	r := seedTimeline(t)
	ctx := context.Background()

	_, err := Assemble(ctx, r, "missing", "", 1, 1)
	be.True(t, apperr.IsNotFound(err))

	_, err = Assemble(ctx, r, "t3", "", -1, 1)
	be.True(t, apperr.IsInvalid(err))

	_, err = Assemble(ctx, r, "t3", "", 1, -1)
	be.True(t, apperr.IsInvalid(err))
}

type brokenSource struct{}

func (brokenSource) Message(context.Context, string, string) (*store.Message, error) {
	return nil, errors.New("database is locked")
}

func (brokenSource) MessagesBefore(context.Context, store.Message, int) ([]store.Message, error) {
	return nil, nil
}

func (brokenSource) MessagesAfter(context.Context, store.Message, int) ([]store.Message, error) {
	return nil, nil
}

func TestAssemblePropagatesStorageFailure(t *testing.T) {
	_, err := Assemble(context.Background(), brokenSource{}, "t3", "", 1, 1)
	be.True(t, errors.Is(err, apperr.ErrStorageUnavailable))
}
