package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleEntry() Entry {
	return Entry{
		Database:  "mydb",
		Operation: "createDatabase",
		RunID:     "run-1",
		StepIndex: 2,
		Step:      "set-password",
		Status:    StatusInProgress,
		UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// ---------- Log ----------

func TestLog_RecordLastClear(t *testing.T) {
	var buf bytes.Buffer
	j := NewLog(zerolog.New(&buf))
	ctx := context.Background()

	got, err := j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, j.Record(ctx, sampleEntry()))
	got, err = j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sampleEntry(), *got)

	other, err := j.Last(ctx, "mydb", "dropDatabase")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, j.Clear(ctx, "mydb", "createDatabase"))
	got, err = j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Contains(t, buf.String(), `"step":"set-password"`)
	assert.Contains(t, buf.String(), `"component":"journal"`)
}

func TestLog_RecordSetsTimestamp(t *testing.T) {
	j := NewLog(zerolog.Nop())
	e := sampleEntry()
	e.UpdatedAt = time.Time{}
	require.NoError(t, j.Record(context.Background(), e))

	got, err := j.Last(context.Background(), e.Database, e.Operation)
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero())
}

// ---------- Postgres ----------

func TestPostgres_Record(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()
	e := sampleEntry()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO lifecycle_journal") && strings.Contains(sql, "ON CONFLICT")
	}), []any{e.Database, e.Operation, e.RunID, e.StepIndex, e.Step, e.Status, e.UpdatedAt}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, j.Record(ctx, e))
	db.AssertExpectations(t)
}

func TestPostgres_RecordError(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := j.Record(ctx, sampleEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record journal entry")
}

func TestPostgres_Last(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()
	want := sampleEntry()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"mydb", "createDatabase"}).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = want.RunID
			*(dest[1].(*int)) = want.StepIndex
			*(dest[2].(*string)) = want.Step
			*(dest[3].(*string)) = want.Status
			*(dest[4].(*time.Time)) = want.UpdatedAt
			return nil
		}})

	got, err := j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestPostgres_LastNoRows(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }})

	got, err := j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgres_LastError(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error { return errors.New("timeout") }})

	_, err := j.Last(ctx, "mydb", "createDatabase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get journal entry")
}

func TestPostgres_Clear(t *testing.T) {
	db := &mockDB{}
	j := NewPostgres(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.HasPrefix(sql, "DELETE FROM lifecycle_journal")
	}), []any{"mydb", "createDatabase"}).Return(pgconn.NewCommandTag("DELETE 1"), nil)

	require.NoError(t, j.Clear(ctx, "mydb", "createDatabase"))
	db.AssertExpectations(t)
}

// ---------- S3 ----------

func TestS3_Record(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()
	e := sampleEntry()

	var put *s3.PutObjectInput
	api.On("PutObject", ctx, mock.Anything).
		Run(func(args mock.Arguments) { put = args.Get(1).(*s3.PutObjectInput) }).
		Return(&s3.PutObjectOutput{}, nil)

	require.NoError(t, j.Record(ctx, e))
	require.NotNil(t, put)
	assert.Equal(t, "journal-bucket", *put.Bucket)
	assert.Equal(t, "dbm/mydb/createDatabase.json", *put.Key)
	assert.Equal(t, "application/json", *put.ContentType)
	data, err := io.ReadAll(put.Body)
	require.NoError(t, err)
	var got Entry
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, e, got)
}

func TestS3_Last(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()
	e := sampleEntry()
	data, err := json.Marshal(e)
	require.NoError(t, err)

	api.On("GetObject", ctx, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return *in.Key == "dbm/mydb/createDatabase.json"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil)

	got, err := j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e, *got)
}

func TestS3_LastNoSuchKey(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()

	api.On("GetObject", ctx, mock.Anything).Return(nil, &s3types.NoSuchKey{})

	got, err := j.Last(ctx, "mydb", "createDatabase")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestS3_LastError(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()

	api.On("GetObject", ctx, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := j.Last(ctx, "mydb", "createDatabase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3_LastCorrupt(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()

	api.On("GetObject", ctx, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("{not json"))}, nil)

	_, err := j.Last(ctx, "mydb", "createDatabase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse journal entry")
}

func TestS3_Clear(t *testing.T) {
	api := &mockObjectAPI{}
	j := NewS3(api, "journal-bucket", "dbm/")
	ctx := context.Background()

	api.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "dbm/mydb/dropDatabase.json"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, j.Clear(ctx, "mydb", "dropDatabase"))
	api.AssertExpectations(t)
}
