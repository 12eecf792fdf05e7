package gateway

import (
	"go.uber.org/zap"

	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/world"
)

// Synchronizer owns the session registry and fans tick output out to the
// sessions that can see each change. All methods run on the game loop
// goroutine.
type Synchronizer struct {
	sessions  map[uint64]*Session
	byEntity  map[ecs.EntityID]uint64
	codec     Codec
	store     *world.Store
	viewTiles int32

	queryBuf []ecs.EntityID
	log      *zap.Logger
}

func NewSynchronizer(store *world.Store, codec Codec, viewTiles int32, log *zap.Logger) *Synchronizer {
	return &Synchronizer{
		sessions:  make(map[uint64]*Session),
		byEntity:  make(map[ecs.EntityID]uint64),
		codec:     codec,
		store:     store,
		viewTiles: viewTiles,
		queryBuf:  make([]ecs.EntityID, 0, 256),
		log:       log,
	}
}

// Register adds a freshly accepted session to the registry.
func (y *Synchronizer) Register(sess *Session) {
	y.sessions[sess.ID] = sess
}

// Bind associates a session with its spawned player entity.
func (y *Synchronizer) Bind(sessionID uint64, entity ecs.EntityID) {
	sess, ok := y.sessions[sessionID]
	if !ok {
		return
	}
	sess.Entity = entity
	y.byEntity[entity] = sessionID
}

// Unregister removes a session. It does not destroy the entity; the caller
// owns that.
func (y *Synchronizer) Unregister(sessionID uint64) {
	sess, ok := y.sessions[sessionID]
	if !ok {
		return
	}
	if !sess.Entity.IsZero() {
		delete(y.byEntity, sess.Entity)
	}
	delete(y.sessions, sessionID)
	sess.Close()
}

// Get returns the session with the given ID, or nil.
func (y *Synchronizer) Get(sessionID uint64) *Session {
	return y.sessions[sessionID]
}

// SessionOf returns the session bound to an entity, or nil.
func (y *Synchronizer) SessionOf(entity ecs.EntityID) *Session {
	id, ok := y.byEntity[entity]
	if !ok {
		return nil
	}
	return y.sessions[id]
}

// Len returns the number of live sessions.
func (y *Synchronizer) Len() int {
	return len(y.sessions)
}

// Distribute routes one tick's delta batch to interested sessions and
// flushes every session's buffer once. Interest rules:
//
//   - ActionRejected goes only to the originating session.
//   - WarState is announced to every session.
//   - EntityMoved is suppressed for the moving entity's own session; the
//     client already predicted its move.
//   - Everything else goes to sessions whose entity is within the view
//     radius of the delta's position.
func (y *Synchronizer) Distribute(deltas []world.Delta) {
	for i := range deltas {
		d := &deltas[i]
		switch d.Kind {
		case world.DeltaActionRejected:
			if sess, ok := y.sessions[d.Origin]; ok {
				sess.Send(y.codec.EncodeDelta(*d))
			}
		case world.DeltaWarState:
			data := y.codec.EncodeDelta(*d)
			for _, sess := range y.sessions {
				sess.Send(data)
			}
		default:
			y.fanOut(d)
		}
	}
	for _, sess := range y.sessions {
		sess.FlushOutput()
	}
}

func (y *Synchronizer) fanOut(d *world.Delta) {
	radiusCells := y.viewTiles/world.CellSize + 1
	y.queryBuf = y.store.Grid().QueryNearby(d.Pos, radiusCells, y.queryBuf[:0])

	var data []byte
	for _, id := range y.queryBuf {
		sessID, ok := y.byEntity[id]
		if !ok {
			continue
		}
		if d.Kind == world.DeltaEntityMoved && id == d.Entity {
			continue
		}
		viewer, err := y.store.Get(id)
		if err != nil || viewer.Pos.Chebyshev(d.Pos) > y.viewTiles {
			continue
		}
		sess, ok := y.sessions[sessID]
		if !ok {
			continue
		}
		if data == nil {
			data = y.codec.EncodeDelta(*d)
		}
		sess.Send(data)
	}
}
