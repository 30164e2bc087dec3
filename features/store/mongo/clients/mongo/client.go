// Package mongo hosts the MongoDB client used by the workflow store.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/slumber/workflow"
)

const (
	defaultWorkflowsCollection = "workflows"
	defaultHistoryCollection   = "workflow_history"
	defaultCountersCollection  = "workflow_counters"
	defaultOpTimeout           = 5 * time.Second
	storeClientName            = "workflow-mongo"
)

// Client exposes Mongo-backed operations for workflow records and history.
type Client interface {
	health.Pinger

	Create(ctx context.Context, id, class string, args []any) error
	Load(ctx context.Context, id string) (workflow.Workflow, error)
	AppendEvent(ctx context.Context, id string, typ workflow.EventType, result []byte) error
	History(ctx context.Context, id string) ([]workflow.Event, error)
	UpdateStatus(ctx context.Context, id string, status workflow.Status, wakeUpTime *time.Time) error
	PollReady(ctx context.Context, limit int) ([]string, error)
	Now() time.Time
}

// Options configures the Mongo workflow client.
type Options struct {
	// Client is the connected Mongo driver client. Required.
	Client *mongodriver.Client
	// Database names the target database. Required.
	Database string
	// WorkflowsCollection overrides the workflow records collection name.
	WorkflowsCollection string
	// HistoryCollection overrides the history collection name.
	HistoryCollection string
	// CountersCollection overrides the per-workflow sequence counters
	// collection name.
	CountersCollection string
	// Timeout bounds individual operations. Defaults to 5s.
	Timeout time.Duration
	// NowFunc overrides the store clock, primarily for tests.
	NowFunc func() time.Time
}

type client struct {
	mongo     *mongodriver.Client
	workflows *mongodriver.Collection
	history   *mongodriver.Collection
	counters  *mongodriver.Collection
	timeout   time.Duration
	now       func() time.Time
}

type workflowDocument struct {
	WorkflowID string     `bson:"workflow_id"`
	Class      string     `bson:"class"`
	Args       string     `bson:"args"`
	Status     string     `bson:"status"`
	WakeUpTime *time.Time `bson:"wake_up_time,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

type eventDocument struct {
	WorkflowID string    `bson:"workflow_id"`
	Seq        int64     `bson:"seq"`
	EventType  string    `bson:"event_type"`
	Result     string    `bson:"result,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

// New returns a Client backed by MongoDB. Indexes are ensured on
// construction: a unique workflow id, a unique per-workflow sequence, and the
// (status, wake_up_time) pair PollReady scans.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	workflowsCollection := opts.WorkflowsCollection
	if workflowsCollection == "" {
		workflowsCollection = defaultWorkflowsCollection
	}
	historyCollection := opts.HistoryCollection
	if historyCollection == "" {
		historyCollection = defaultHistoryCollection
	}
	countersCollection := opts.CountersCollection
	if countersCollection == "" {
		countersCollection = defaultCountersCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	now := opts.NowFunc
	if now == nil {
		now = time.Now
	}
	db := opts.Client.Database(opts.Database)
	c := &client{
		mongo:     opts.Client,
		workflows: db.Collection(workflowsCollection),
		history:   db.Collection(historyCollection),
		counters:  db.Collection(countersCollection),
		timeout:   timeout,
		now:       now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) Name() string {
	return storeClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) Create(ctx context.Context, id, class string, args []any) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	if class == "" {
		return errors.New("workflow class is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	now := c.now().UTC()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err = c.workflows.InsertOne(ctx, workflowDocument{
		WorkflowID: id,
		Class:      class,
		Args:       string(raw),
		Status:     string(workflow.StatusRunning),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if mongodriver.IsDuplicateKeyError(err) {
		return workflow.ErrWorkflowExists
	}
	return err
}

func (c *client) Load(ctx context.Context, id string) (workflow.Workflow, error) {
	if id == "" {
		return workflow.Workflow{}, errors.New("workflow id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc workflowDocument
	if err := c.workflows.FindOne(ctx, bson.M{"workflow_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return workflow.Workflow{}, workflow.ErrWorkflowNotFound
		}
		return workflow.Workflow{}, err
	}
	return doc.toWorkflow()
}

func (c *client) AppendEvent(ctx context.Context, id string, typ workflow.EventType, result []byte) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	if _, err := c.Load(ctx, id); err != nil {
		return err
	}
	seq, err := c.nextSeq(ctx, id)
	if err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err = c.history.InsertOne(ctx, eventDocument{
		WorkflowID: id,
		Seq:        seq,
		EventType:  string(typ),
		Result:     string(result),
		CreatedAt:  c.now().UTC(),
	})
	return err
}

func (c *client) History(ctx context.Context, id string) ([]workflow.Event, error) {
	if id == "" {
		return nil, errors.New("workflow id is required")
	}
	if _, err := c.Load(ctx, id); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.history.Find(ctx, bson.M{"workflow_id": id},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []workflow.Event
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toEvent())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) UpdateStatus(ctx context.Context, id string, status workflow.Status, wakeUpTime *time.Time) error {
	if id == "" {
		return errors.New("workflow id is required")
	}
	if !status.Valid() {
		return errors.New("invalid workflow status")
	}
	if status == workflow.StatusSleeping && wakeUpTime == nil {
		return errors.New("wake_up_time is required for sleeping status")
	}
	set := bson.M{
		"status":     string(status),
		"updated_at": c.now().UTC(),
	}
	update := bson.M{"$set": set}
	switch {
	case wakeUpTime != nil:
		set["wake_up_time"] = wakeUpTime.UTC()
	case status != workflow.StatusSleeping:
		update["$unset"] = bson.M{"wake_up_time": ""}
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	// Filtering out terminal statuses keeps completed/failed sticky without a
	// read-modify-write race.
	filter := bson.M{
		"workflow_id": id,
		"status": bson.M{"$nin": bson.A{
			string(workflow.StatusCompleted),
			string(workflow.StatusFailed),
		}},
	}
	res, err := c.workflows.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := c.Load(ctx, id); err != nil {
			return err
		}
		return workflow.ErrWorkflowTerminal
	}
	return nil
}

func (c *client) PollReady(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = workflow.DefaultPollLimit
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"status":       string(workflow.StatusSleeping),
		"wake_up_time": bson.M{"$lte": c.now().UTC()},
	}
	cur, err := c.workflows.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "wake_up_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"workflow_id": 1}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []string
	for cur.Next(ctx) {
		var doc struct {
			WorkflowID string `bson:"workflow_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.WorkflowID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) Now() time.Time {
	return c.now()
}

// nextSeq allocates the next per-workflow sequence number through an atomic
// counter upsert, which preserves strict insertion order across processes.
func (c *client) nextSeq(ctx context.Context, id string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := c.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (c *client) ensureIndexes(ctx context.Context) error {
	_, err := c.workflows.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "workflow_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "wake_up_time", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("ensure workflow indexes: %w", err)
	}
	_, err = c.history.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "workflow_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure history indexes: %w", err)
	}
	return nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (d workflowDocument) toWorkflow() (workflow.Workflow, error) {
	out := workflow.Workflow{
		ID:        d.WorkflowID,
		Class:     d.Class,
		Status:    workflow.Status(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.WakeUpTime != nil {
		at := d.WakeUpTime.UTC()
		out.WakeUpTime = &at
	}
	if d.Args != "" {
		if err := json.Unmarshal([]byte(d.Args), &out.Args); err != nil {
			return workflow.Workflow{}, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	return out, nil
}

func (d eventDocument) toEvent() workflow.Event {
	out := workflow.Event{
		WorkflowID: d.WorkflowID,
		Seq:        d.Seq,
		Type:       workflow.EventType(d.EventType),
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.Result != "" {
		out.Result = []byte(d.Result)
	}
	return out
}
