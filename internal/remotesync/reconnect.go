package remotesync

import (
	"context"
	"sync"
)

// Reconnecting is a Remote that opens its backend on first use. A failed open
// is returned to the caller and attempted again on the next call, so a remote
// that is down at startup becomes usable once it is back.
type Reconnecting struct {
	open func(ctx context.Context) (Remote, error)

	mu sync.Mutex
	r  Remote
}

func NewReconnecting(open func(ctx context.Context) (Remote, error)) *Reconnecting {
	return &Reconnecting{open: open}
}

// SQLDialer opens an SQLRemote (connect + migrate) for Reconnecting.
func SQLDialer(driver, dsn string) func(ctx context.Context) (Remote, error) {
	return func(ctx context.Context) (Remote, error) {
		r, err := OpenSQLRemote(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func (c *Reconnecting) get(ctx context.Context) (Remote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r != nil {
		return c.r, nil
	}
	r, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.r = r
	return r, nil
}

func (c *Reconnecting) Ping(ctx context.Context) error {
	r, err := c.get(ctx)
	if err != nil {
		return err
	}
	return r.Ping(ctx)
}

func (c *Reconnecting) UpsertRecords(ctx context.Context, rows []Row) error {
	r, err := c.get(ctx)
	if err != nil {
		return err
	}
	return r.UpsertRecords(ctx, rows)
}

func (c *Reconnecting) FetchRecords(ctx context.Context, deviceID string) ([]Row, error) {
	r, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return r.FetchRecords(ctx, deviceID)
}

func (c *Reconnecting) CountRecords(ctx context.Context, deviceID string) (int, error) {
	r, err := c.get(ctx)
	if err != nil {
		return 0, err
	}
	return r.CountRecords(ctx, deviceID)
}

func (c *Reconnecting) InsertBackup(ctx context.Context, m BackupMeta) error {
	r, err := c.get(ctx)
	if err != nil {
		return err
	}
	return r.InsertBackup(ctx, m)
}

func (c *Reconnecting) ListBackups(ctx context.Context, deviceID string) ([]BackupMeta, error) {
	r, err := c.get(ctx)
	if err != nil {
		return nil, err
	}
	return r.ListBackups(ctx, deviceID)
}

func (c *Reconnecting) DeleteBackups(ctx context.Context, ids []string) error {
	r, err := c.get(ctx)
	if err != nil {
		return err
	}
	return r.DeleteBackups(ctx, ids)
}

func (c *Reconnecting) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	err := c.r.Close()
	c.r = nil
	return err
}
