package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/edvin/dbmanager/internal/journal"
	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/secrets"
)

type fakeSecret struct {
	record model.SecretRecord
	tags   map[string]string
}

// fakeVault is an in-memory SecretStore that counts every call.
type fakeVault struct {
	mu        sync.Mutex
	secrets   map[string]*fakeSecret
	seq       int
	calls     int
	getErr    error
	createErr []error // consumed one per CreateSecret call
	findErr   error
	deleteErr map[string]error
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		secrets:   map[string]*fakeSecret{},
		deleteErr: map[string]error{},
	}
}

func (v *fakeVault) put(id string, rec model.SecretRecord, tags map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[id] = &fakeSecret{record: rec, tags: tags}
}

func (v *fakeVault) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// tagged returns the records tagged with the tenant tag for name.
func (v *fakeVault) tagged(name string) map[string]model.SecretRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := map[string]model.SecretRecord{}
	for id, s := range v.secrets {
		if s.tags[model.TenantTagKey] == name {
			out[id] = s.record
		}
	}
	return out
}

func (v *fakeVault) GetSecret(_ context.Context, id string) (*model.SecretRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.getErr != nil {
		return nil, v.getErr
	}
	s, ok := v.secrets[id]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	rec := s.record
	return &rec, nil
}

func (v *fakeVault) CreateSecret(_ context.Context, databaseName, username, host string, port int, password string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.createErr) > 0 {
		err := v.createErr[0]
		v.createErr = v.createErr[1:]
		if err != nil {
			return "", err
		}
	}
	v.seq++
	rec := model.SecretRecord{Username: username, Password: password, Host: host, Port: port, Engine: model.EnginePostgres}
	id := fmt.Sprintf("arn:aws:secretsmanager:eu-west-1:123456789012:secret:database/%s/%s-%05d", rec.HostPrefix(), username, v.seq)
	v.secrets[id] = &fakeSecret{record: rec, tags: map[string]string{model.TenantTagKey: databaseName}}
	return id, nil
}

func (v *fakeVault) RotateSecret(_ context.Context, id string, record model.SecretRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	s, ok := v.secrets[id]
	if !ok {
		return secrets.ErrNotFound
	}
	s.record = record
	return nil
}

func (v *fakeVault) FindSecretsByTag(_ context.Context, key, value string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.findErr != nil {
		return nil, v.findErr
	}
	ids := []string{}
	for _, id := range slices.Sorted(maps.Keys(v.secrets)) {
		if v.secrets[id].tags[key] == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (v *fakeVault) DeleteSecret(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if err := v.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := v.secrets[id]; !ok {
		return secrets.ErrNotFound
	}
	delete(v.secrets, id)
	return nil
}

// brokenJournal fails every call.
type brokenJournal struct{}

var errJournalDown = errors.New("journal unavailable")

func (brokenJournal) Record(context.Context, journal.Entry) error { return errJournalDown }
func (brokenJournal) Last(context.Context, string, string) (*journal.Entry, error) {
	return nil, errJournalDown
}
func (brokenJournal) Clear(context.Context, string, string) error { return errJournalDown }
