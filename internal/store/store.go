// Copyright (c) 2025 Berik Ashimov

// Package store keeps built plans in sqlite so a design can be reopened,
// exported or rendered later without rebuilding it.
package store

import (
	"database/sql"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"routeplan/internal/design"
)

var ErrPlanNotFound = errors.New("store: plan not found")

type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

type Option func(*Store)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the sqlite database at dsn with foreign keys enforced.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(dsn))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dsn)
	}
	// An in-memory database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", dsn)
	}
	return New(db, opts...), nil
}

// New wraps an already opened database.
func New(db *sql.DB, opts ...Option) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Store{db: db, log: discard, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SQLiteDSN appends the foreign key pragma unless the DSN already sets it.
func SQLiteDSN(raw string) string {
	if strings.Contains(raw, "_pragma=foreign_keys") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "_pragma=foreign_keys(1)"
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping() error { return s.db.Ping() }

// PlanInfo is the list view of a stored plan.
type PlanInfo struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Base      string `json:"base" yaml:"base"`
	Routers   int    `json:"routers" yaml:"routers"`
	Blocks    int    `json:"blocks" yaml:"blocks"`
	Routes    int    `json:"routes" yaml:"routes"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

// Source is the design document a plan was built from.
type Source struct {
	Body   []byte
	Format string
}

type sqlExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// SavePlan stores plan and the design source it came from in one
// transaction and returns the new plan id.
func (s *Store) SavePlan(plan *design.Plan, src Source) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	id, err := insertPlan(tx, plan, src, s.now())
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"plan_id": id,
		"name":    plan.Name,
		"routes":  len(plan.Routes),
	}).Info("plan saved")
	return id, nil
}

func insertPlan(tx sqlExecer, plan *design.Plan, src Source, at time.Time) (int64, error) {
	res, err := tx.Exec(`
		INSERT INTO plans(name, base, routers, source, source_format, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		plan.Name, plan.Base, plan.Routers, nullBytes(src.Body), nullString(src.Format), at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert plan")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, l := range plan.LANs {
		if _, err := tx.Exec(`
			INSERT INTO plan_lans(plan_id, router, vlan, name, cidr, network, mask, prefix, gateway, first_host, broadcast, usable)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, l.Router, l.VLAN, l.Name, l.CIDR, l.Network, l.Mask, l.Prefix, l.Gateway, l.FirstHost, l.Broadcast, int64(l.Usable),
		); err != nil {
			return 0, errors.Wrapf(err, "insert lan %s", l.CIDR)
		}
	}
	for _, l := range plan.Links {
		if _, err := tx.Exec(`
			INSERT INTO plan_links(plan_id, router_a, router_b, cidr, network, mask, prefix, addr_a, addr_b)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, l.A, l.B, l.CIDR, l.Network, l.Mask, l.Prefix, l.AddrA, l.AddrB,
		); err != nil {
			return 0, errors.Wrapf(err, "insert link %s", l.CIDR)
		}
	}
	for _, u := range plan.Uplinks {
		if _, err := tx.Exec(`
			INSERT INTO plan_uplinks(plan_id, router, cidr, network, mask, prefix, router_addr, switch_addr)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			id, u.Router, u.CIDR, u.Network, u.Mask, u.Prefix, u.RouterAddr, u.SwitchAddr,
		); err != nil {
			return 0, errors.Wrapf(err, "insert uplink %s", u.CIDR)
		}
	}
	for i, r := range plan.Routes {
		if _, err := tx.Exec(`
			INSERT INTO plan_routes(plan_id, position, router, destination, network, mask, prefix, next_hop, via, hops, kind, is_local)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, r.Router, r.Destination, r.Network, r.Mask, r.Prefix, r.NextHop, r.Via, r.Hops, r.Kind, boolToInt(r.Local),
		); err != nil {
			return 0, errors.Wrapf(err, "insert route %s", r.Destination)
		}
	}
	for _, c := range plan.Summary {
		if _, err := tx.Exec(`
			INSERT INTO plan_classes(plan_id, prefix, block_count, first_addr, last_addr, addresses)
			VALUES(?, ?, ?, ?, ?, ?)`,
			id, c.Prefix, c.Count, c.First, c.Last, int64(c.Addresses),
		); err != nil {
			return 0, errors.Wrapf(err, "insert class /%d", c.Prefix)
		}
	}
	return id, nil
}

// LoadPlan reads plan id back.
func (s *Store) LoadPlan(id int64) (*design.Plan, error) {
	plan := &design.Plan{}
	err := s.db.QueryRow(`SELECT name, base, routers FROM plans WHERE id=?`, id).
		Scan(&plan.Name, &plan.Base, &plan.Routers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrPlanNotFound, "id %d", id)
	}
	if err != nil {
		return nil, err
	}
	if plan.LANs, err = s.loadLANs(id); err != nil {
		return nil, err
	}
	if plan.Links, err = s.loadLinks(id); err != nil {
		return nil, err
	}
	if plan.Uplinks, err = s.loadUplinks(id); err != nil {
		return nil, err
	}
	if plan.Routes, err = s.loadRoutes(id); err != nil {
		return nil, err
	}
	if plan.Summary, err = s.loadClasses(id); err != nil {
		return nil, err
	}
	return plan, nil
}

// LoadSource returns the design document plan id was built from.
func (s *Store) LoadSource(id int64) (Source, error) {
	var body, format sql.NullString
	err := s.db.QueryRow(`SELECT source, source_format FROM plans WHERE id=?`, id).Scan(&body, &format)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, errors.Wrapf(ErrPlanNotFound, "id %d", id)
	}
	if err != nil {
		return Source{}, err
	}
	return Source{Body: []byte(body.String), Format: format.String}, nil
}

// ListPlans returns every stored plan, newest first.
func (s *Store) ListPlans() ([]PlanInfo, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.name, p.base, p.routers, p.created_at,
			(SELECT COUNT(1) FROM plan_lans WHERE plan_id=p.id)
			+ (SELECT COUNT(1) FROM plan_links WHERE plan_id=p.id)
			+ (SELECT COUNT(1) FROM plan_uplinks WHERE plan_id=p.id),
			(SELECT COUNT(1) FROM plan_routes WHERE plan_id=p.id)
		FROM plans p
		ORDER BY p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlanInfo
	for rows.Next() {
		var p PlanInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.Base, &p.Routers, &p.CreatedAt, &p.Blocks, &p.Routes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlan removes plan id and everything stored with it.
func (s *Store) DeletePlan(id int64) error {
	res, err := s.db.Exec(`DELETE FROM plans WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrPlanNotFound, "id %d", id)
	}
	s.log.WithField("plan_id", id).Info("plan deleted")
	return nil
}

func (s *Store) loadLANs(id int64) ([]design.LANBlock, error) {
	rows, err := s.db.Query(`
		SELECT router, vlan, name, cidr, network, mask, prefix, gateway, first_host, broadcast, usable
		FROM plan_lans WHERE plan_id=? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []design.LANBlock
	for rows.Next() {
		var l design.LANBlock
		var usable int64
		if err := rows.Scan(&l.Router, &l.VLAN, &l.Name, &l.CIDR, &l.Network, &l.Mask, &l.Prefix, &l.Gateway, &l.FirstHost, &l.Broadcast, &usable); err != nil {
			return nil, err
		}
		l.Usable = uint64(usable)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) loadLinks(id int64) ([]design.LinkBlock, error) {
	rows, err := s.db.Query(`
		SELECT router_a, router_b, cidr, network, mask, prefix, addr_a, addr_b
		FROM plan_links WHERE plan_id=? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []design.LinkBlock
	for rows.Next() {
		var l design.LinkBlock
		if err := rows.Scan(&l.A, &l.B, &l.CIDR, &l.Network, &l.Mask, &l.Prefix, &l.AddrA, &l.AddrB); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) loadUplinks(id int64) ([]design.UplinkBlock, error) {
	rows, err := s.db.Query(`
		SELECT router, cidr, network, mask, prefix, router_addr, switch_addr
		FROM plan_uplinks WHERE plan_id=? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []design.UplinkBlock
	for rows.Next() {
		var u design.UplinkBlock
		if err := rows.Scan(&u.Router, &u.CIDR, &u.Network, &u.Mask, &u.Prefix, &u.RouterAddr, &u.SwitchAddr); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) loadRoutes(id int64) ([]design.Route, error) {
	rows, err := s.db.Query(`
		SELECT router, destination, network, mask, prefix, next_hop, via, hops, kind, is_local
		FROM plan_routes WHERE plan_id=? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []design.Route
	for rows.Next() {
		var r design.Route
		var local int
		if err := rows.Scan(&r.Router, &r.Destination, &r.Network, &r.Mask, &r.Prefix, &r.NextHop, &r.Via, &r.Hops, &r.Kind, &local); err != nil {
			return nil, err
		}
		r.Local = local != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadClasses(id int64) ([]design.ClassRow, error) {
	rows, err := s.db.Query(`
		SELECT prefix, block_count, first_addr, last_addr, addresses
		FROM plan_classes WHERE plan_id=? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []design.ClassRow
	for rows.Next() {
		var c design.ClassRow
		var addrs int64
		if err := rows.Scan(&c.Prefix, &c.Count, &c.First, &c.Last, &addrs); err != nil {
			return nil, err
		}
		c.Addresses = uint64(addrs)
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

func nullBytes(v []byte) sql.NullString {
	return sql.NullString{String: string(v), Valid: len(v) > 0}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
