// Package journal implements the transaction journal: an append-only,
// fsynced record of every install/uninstall operation, replayed in
// reverse to roll a failed transaction back, with commit-time
// retention cleanup and a startup scan for transactions a crashed run
// left open.
package journal

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/zoi-pm/zoi/src/internal/errs"
	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/telemetry"
)

// PackageKey identifies a package slot independent of version, the
// unit rollback reasons about.
type PackageKey struct {
	Scope          model.Scope
	RegistryHandle string
	Repo           string
	Name           string
}

func keyFromManifest(m *model.InstallManifest) PackageKey {
	return PackageKey{Scope: m.Scope, RegistryHandle: m.RegistryHandle, Repo: m.Repo, Name: m.Name}
}

// record is the on-disk shape of one transaction file.
type record struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	Operations []recordOperation  `json:"operations"`
}

type recordOperation struct {
	Kind     string                 `json:"kind"`
	Manifest *model.InstallManifest `json:"manifest"`
}

// Transaction tracks one install/uninstall run.
type Transaction struct {
	mu sync.Mutex

	id       string
	path     string
	fs       afero.Fs
	baseline map[PackageKey]bool
	preState map[PackageKey]*model.InstallManifest
	status   model.TransactionStatus
	ops      []model.Operation
	cleanup  []PackageKey
}

// Journal persists transactions under a directory (paths.TransactionsDir).
// Fs defaults to the real OS filesystem; tests substitute
// afero.NewMemMapFs() to exercise recovery/rollback without touching disk.
type Journal struct {
	Dir string
	Fs  afero.Fs
}

func (j *Journal) fs() afero.Fs {
	if j.Fs != nil {
		return j.Fs
	}
	return afero.NewOsFs()
}

// newTransactionID derives a sortable, timestamp-prefixed id. google/uuid's
// NewV7 already produces RFC 9562 UUIDv7, which is itself
// timestamp-ordered, so replay order follows creation order.
func newTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Begin creates transactions/<id>.json with status Open and an empty
// operations list, and snapshots the installed-package baseline for
// later rollback comparison.
func (j *Journal) Begin(installed []*model.InstallManifest) (*Transaction, error) {
	id, err := newTransactionID()
	if err != nil {
		return nil, errs.New(errs.Filesystem, "", err)
	}
	tx := &Transaction{
		id:       id,
		path:     j.Dir + string(os.PathSeparator) + id + ".json",
		fs:       j.fs(),
		baseline: map[PackageKey]bool{},
		preState: map[PackageKey]*model.InstallManifest{},
		status:   model.StatusOpen,
	}
	for _, m := range installed {
		tx.baseline[keyFromManifest(m)] = true
	}
	if err := tx.fs.MkdirAll(j.Dir, 0o755); err != nil {
		return nil, errs.New(errs.Filesystem, "", err)
	}
	if err := tx.persist(); err != nil {
		return nil, err
	}
	return tx, nil
}

// RegisterPreState records a package's manifest (or its absence)
// before this transaction touches it, so rollback can tell whether to
// delete or revert. Idempotent: the first call for a given key wins.
func (t *Transaction) RegisterPreState(key PackageKey, existing *model.InstallManifest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.preState[key]; ok {
		return
	}
	t.preState[key] = existing
}

// RecordInstall appends an Install operation and fsyncs the journal
// file.
func (t *Transaction) RecordInstall(m *model.InstallManifest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, model.Operation{Kind: model.OpInstall, Manifest: m})
	return t.persistLocked()
}

// RecordUninstall appends an Uninstall operation (carrying the
// manifest that was removed or superseded) and fsyncs.
func (t *Transaction) RecordUninstall(m *model.InstallManifest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, model.Operation{Kind: model.OpUninstall, Manifest: m})
	return t.persistLocked()
}

// DeferCleanup schedules a package slot for post-commit old-version
// pruning.
func (t *Transaction) DeferCleanup(key PackageKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup = append(t.cleanup, key)
}

// PruneOldVersions is the callback signature commit() invokes per
// deferred cleanup key; the journal doesn't know the store layout, so
// the caller (internal/engine) supplies the retention-aware deletion.
type PruneOldVersions func(key PackageKey, keep int) error

// RollbackOp is a single action the rollback loop issues for the
// caller (internal/engine's rollback) to execute: either
// delete a newly-installed version or restore a previous one.
type RollbackOp struct {
	Kind     string // "delete_install" or "restore_previous"
	Manifest *model.InstallManifest
}

// Commit marks the transaction Committed and runs deferred cleanup
// with the given retention policy.
func (t *Transaction) Commit(rollbackEnabled bool, prune PruneOldVersions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = model.StatusCommitted
	keep := 1
	if rollbackEnabled {
		keep = 2
	}
	sortedCleanup := append([]PackageKey{}, t.cleanup...)
	sort.Slice(sortedCleanup, func(i, j int) bool { return sortedCleanup[i].Name < sortedCleanup[j].Name })
	for _, key := range sortedCleanup {
		if prune != nil {
			if err := prune(key, keep); err != nil {
				return err
			}
		}
	}
	return t.persistLocked()
}

// Rollback walks the operations in reverse, producing the ordered
// list of actions the caller must apply. The journal itself never
// touches the filesystem beyond its own record; the caller executes
// the actual deletion/restoration.
func (t *Transaction) Rollback() []RollbackOp {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := telemetry.StartSpan("journal.rollback", "transaction_id", t.id, "operations", len(t.ops))
	defer done()

	var plan []RollbackOp
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		switch op.Kind {
		case model.OpInstall:
			plan = append(plan, RollbackOp{Kind: "delete_install", Manifest: op.Manifest})
		case model.OpUninstall:
			plan = append(plan, RollbackOp{Kind: "restore_previous", Manifest: op.Manifest})
		}
	}
	for _, pre := range t.preState {
		if pre != nil {
			plan = append(plan, RollbackOp{Kind: "restore_previous", Manifest: pre})
		}
	}

	t.status = model.StatusRolledBack
	_ = t.persistLocked()
	return plan
}

func (t *Transaction) ID() string                      { return t.id }
func (t *Transaction) Status() model.TransactionStatus  { return t.status }

func (t *Transaction) persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persistLocked()
}

func (t *Transaction) persistLocked() error {
	rec := record{ID: t.id, Status: string(t.status)}
	for _, op := range t.ops {
		rec.Operations = append(rec.Operations, recordOperation{Kind: string(op.Kind), Manifest: op.Manifest})
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errs.New(errs.Filesystem, t.id, err)
	}
	fs := t.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.New(errs.Filesystem, t.id, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return errs.New(errs.Filesystem, t.id, err)
	}
	return f.Sync()
}

// Recover scans the transactions directory on startup and returns
// every still-Open transaction; calling Rollback on each yields its
// rollback plan, so a crashed run can be rolled back across restarts.
func (j *Journal) Recover() ([]*Transaction, error) {
	fs := j.fs()
	entries, err := afero.ReadDir(fs, j.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.Filesystem, j.Dir, err)
	}

	var open []*Transaction
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := j.Dir + string(os.PathSeparator) + e.Name()
		data, readErr := afero.ReadFile(fs, path)
		if readErr != nil {
			continue
		}
		var rec record
		if jsonErr := json.Unmarshal(data, &rec); jsonErr != nil {
			continue
		}
		if rec.Status != string(model.StatusOpen) {
			continue
		}
		tx := &Transaction{id: rec.ID, path: path, fs: fs, status: model.StatusOpen, preState: map[PackageKey]*model.InstallManifest{}}
		for _, op := range rec.Operations {
			tx.ops = append(tx.ops, model.Operation{Kind: model.OperationKind(op.Kind), Manifest: op.Manifest})
		}
		open = append(open, tx)
	}
	return open, nil
}
