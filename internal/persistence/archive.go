package persistence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/logging"
)

// ArchiveConfig configures the best-effort Mongo archival sink (spec
// 4.H): it mirrors completed journal batches out for external
// replay-service tooling and is never consulted by Replay itself, so a
// misconfigured or unreachable archive can never affect determinism.
type ArchiveConfig struct {
	URI            string
	Database       string
	Collection     string
	CappedSizeByte int64
}

// ArchiveSink writes journal events to a capped Mongo collection,
// generalizing the teacher's MongoUserRepo (a user-document repository)
// to append-only event documents.
type ArchiveSink struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewArchiveSink connects to Mongo and ensures the capped collection
// exists. A capped collection naturally evicts its oldest documents once
// CappedSizeByte is reached — exactly what "mirror, don't archive
// forever" calls for here.
func NewArchiveSink(cfg ArchiveConfig) (*ArchiveSink, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "worldkernel"
	}
	if cfg.Collection == "" {
		cfg.Collection = "journal_archive"
	}
	if cfg.CappedSizeByte == 0 {
		cfg.CappedSizeByte = 1 << 30 // 1 GiB
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	_ = db.CreateCollection(ctx, cfg.Collection,
		options.CreateCollection().SetCapped(true).SetSizeInBytes(cfg.CappedSizeByte))

	return &ArchiveSink{
		client:     client,
		collection: db.Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}, nil
}

// archiveDoc is the bson shape one archived event takes. It carries
// enough of action.Event to be useful to an external replay-service
// reader without attempting to mirror every payload field — the
// authoritative record stays the Badger journal.
type archiveDoc struct {
	Tick       uint64    `bson:"tick"`
	Seq        uint64    `bson:"seq"`
	Kind       string    `bson:"kind"`
	AgentID    string    `bson:"agent_id,omitempty"`
	ActorID    string    `bson:"actor_id,omitempty"`
	ArchivedAt time.Time `bson:"archived_at"`
}

// MirrorBatch writes every event in batch as a best-effort archival
// document. A failure here is logged and swallowed — spec 4.H is
// explicit that this sink is never read from during authoritative
// replay, so losing an archive write must never abort a tick.
func (a *ArchiveSink) MirrorBatch(events []action.Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.ctxTimeout)
	defer cancel()

	docs := make([]interface{}, 0, len(events))
	now := time.Now()
	for _, ev := range events {
		docs = append(docs, archiveDoc{
			Tick: ev.Tick, Seq: ev.Seq, Kind: ev.Kind.String(),
			AgentID: ev.AgentID, ActorID: ev.ActorID, ArchivedAt: now,
		})
	}

	if _, err := a.collection.InsertMany(ctx, docs); err != nil {
		logging.LogWarn("persistence: archive mirror failed for %d events: %v", len(events), err)
	}
}

func (a *ArchiveSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}
