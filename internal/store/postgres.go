package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/SecuritisAU/RouteOptimizerProPro2/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// MigrateDir applies *.sql files from dir in lexical order (dev helper).
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) CreatePlan(ctx context.Context, tenantID string, in model.PlanIn) (model.Plan, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Plan{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New()
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans (id, tenant_id, name, status, created_at, updated_at) VALUES ($1,$2,$3,'draft',$4,$4)`,
		id, tenantID, strings.TrimSpace(in.Name), now)
	if err != nil {
		return model.Plan{}, err
	}
	for seq, s := range in.Stops {
		role := normalizeRole(s.Role)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stops (id, plan_id, tenant_id, address, role, seq) VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.New(), id, tenantID, strings.TrimSpace(s.Address), role, seq)
		if err != nil {
			return model.Plan{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Plan{}, err
	}
	return p.GetPlan(ctx, tenantID, id.String())
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != model.RoleStart && role != model.RoleEnd {
		role = model.RoleVia
	}
	return role
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, planID string) (model.Plan, error) {
	var pl model.Plan
	var created, updated time.Time
	err := p.db.QueryRowContext(ctx,
		`SELECT id::text, tenant_id, name, status, created_at, updated_at FROM plans WHERE id=$1 AND tenant_id=$2`,
		planID, tenantID).Scan(&pl.ID, &pl.TenantID, &pl.Name, &pl.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, ErrNotFound
	}
	if err != nil {
		return model.Plan{}, err
	}
	pl.CreatedAt = created.Format(time.RFC3339)
	pl.UpdatedAt = updated.Format(time.RFC3339)

	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, address, role, seq FROM stops WHERE plan_id=$1 ORDER BY seq`, planID)
	if err != nil {
		return model.Plan{}, err
	}
	defer rows.Close()
	pl.Stops = []model.Stop{}
	for rows.Next() {
		var s model.Stop
		if err := rows.Scan(&s.ID, &s.Address, &s.Role, &s.Seq); err != nil {
			return model.Plan{}, err
		}
		pl.Stops = append(pl.Stops, s)
	}
	return pl, rows.Err()
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanOut, string, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT p.id::text, p.tenant_id, p.name, p.status, p.updated_at,
	        (SELECT count(*) FROM stops s WHERE s.plan_id = p.id) AS stop_count
	      FROM plans p WHERE p.tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		q += ` AND p.id::text > $2`
		args = append(args, cursor)
	}
	q += fmt.Sprintf(` ORDER BY p.id LIMIT %d`, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.PlanOut{}
	for rows.Next() {
		var po model.PlanOut
		var updated time.Time
		if err := rows.Scan(&po.ID, &po.TenantID, &po.Name, &po.Status, &updated, &po.StopCount); err != nil {
			return nil, "", err
		}
		po.UpdatedAt = updated.Format(time.RFC3339)
		out = append(out, po)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeletePlan(ctx context.Context, tenantID, planID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM plans WHERE id=$1 AND tenant_id=$2`, planID, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddStop(ctx context.Context, tenantID, planID string, in model.StopIn) (model.Stop, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Stop{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := planExists(ctx, tx, tenantID, planID); err != nil {
		return model.Stop{}, err
	}
	s, err := addStopTx(ctx, tx, tenantID, planID, in)
	if err != nil {
		return model.Stop{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Stop{}, err
	}
	return s, nil
}

func planExists(ctx context.Context, tx *sql.Tx, tenantID, planID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM plans WHERE id=$1 AND tenant_id=$2 FOR UPDATE`, planID, tenantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func addStopTx(ctx context.Context, tx *sql.Tx, tenantID, planID string, in model.StopIn) (model.Stop, error) {
	role := normalizeRole(in.Role)
	if role != model.RoleVia {
		// a second start/end replaces the previous holder
		if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE plan_id=$1 AND role=$2`, planID, role); err != nil {
			return model.Stop{}, err
		}
	}
	s := model.Stop{ID: uuid.New().String(), Address: strings.TrimSpace(in.Address), Role: role}
	err := tx.QueryRowContext(ctx,
		`INSERT INTO stops (id, plan_id, tenant_id, address, role, seq)
		 VALUES ($1,$2,$3,$4,$5, COALESCE((SELECT max(seq)+1 FROM stops WHERE plan_id=$2), 0))
		 RETURNING seq`,
		s.ID, planID, tenantID, s.Address, s.Role).Scan(&s.Seq)
	if err != nil {
		return model.Stop{}, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE plans SET updated_at=now() WHERE id=$1`, planID)
	return s, err
}

func (p *Postgres) AddStops(ctx context.Context, tenantID, planID string, ins []model.StopIn) (int, int, []model.Stop, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := planExists(ctx, tx, tenantID, planID); err != nil {
		return 0, 0, nil, err
	}
	seen := map[string]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT address FROM stops WHERE plan_id=$1`, planID)
	if err != nil {
		return 0, 0, nil, err
	}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			rows.Close()
			return 0, 0, nil, err
		}
		seen[normAddr(a)] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, nil, err
	}

	created, skipped := 0, 0
	added := []model.Stop{}
	for _, in := range ins {
		k := normAddr(in.Address)
		if k == "" || seen[k] {
			skipped++
			continue
		}
		seen[k] = true
		s, err := addStopTx(ctx, tx, tenantID, planID, in)
		if err != nil {
			return 0, 0, nil, err
		}
		added = append(added, s)
		created++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, nil, err
	}
	return created, skipped, added, nil
}

func (p *Postgres) RemoveStop(ctx context.Context, tenantID, planID, stopID string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM stops WHERE id=$1 AND plan_id=$2 AND tenant_id=$3`, stopID, planID, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = p.db.ExecContext(ctx, `UPDATE plans SET updated_at=now() WHERE id=$1`, planID)
	return err
}

func (p *Postgres) ClearStops(ctx context.Context, tenantID, planID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := planExists(ctx, tx, tenantID, planID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE plan_id=$1`, planID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plans SET status='draft', updated_at=now() WHERE id=$1`, planID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) BeginOptimization(ctx context.Context, tenantID, planID, modelName string) (model.Optimization, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Optimization{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := planExists(ctx, tx, tenantID, planID); err != nil {
		return model.Optimization{}, err
	}
	var pending int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM optimizations WHERE plan_id=$1 AND status='pending'`, planID).Scan(&pending)
	if err != nil {
		return model.Optimization{}, err
	}
	if pending > 0 {
		return model.Optimization{}, ErrOptimizationPending
	}
	o := model.Optimization{
		ID: uuid.New().String(), PlanID: planID, TenantID: tenantID,
		Status: model.OptimizationPending, Model: modelName,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO optimizations (id, plan_id, tenant_id, status, model, requested_at) VALUES ($1,$2,$3,$4,$5,now())`,
		o.ID, planID, tenantID, o.Status, o.Model)
	if err != nil {
		return model.Optimization{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plans SET status='optimizing', updated_at=now() WHERE id=$1`, planID); err != nil {
		return model.Optimization{}, err
	}
	return o, tx.Commit()
}

func (p *Postgres) CompleteOptimization(ctx context.Context, tenantID, optID string, stops []model.OptimizedStop) (model.Optimization, error) {
	b, _ := json.Marshal(stops)
	var planID string
	err := p.db.QueryRowContext(ctx,
		`UPDATE optimizations SET status='succeeded', stops=$1, finished_at=now()
		 WHERE id=$2 AND tenant_id=$3 RETURNING plan_id::text`, b, optID, tenantID).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Optimization{}, ErrNotFound
	}
	if err != nil {
		return model.Optimization{}, err
	}
	if _, err := p.db.ExecContext(ctx, `UPDATE plans SET status='optimized', updated_at=now() WHERE id=$1`, planID); err != nil {
		return model.Optimization{}, err
	}
	return p.GetOptimization(ctx, tenantID, optID)
}

func (p *Postgres) FailOptimization(ctx context.Context, tenantID, optID, errMsg string) (model.Optimization, error) {
	var planID string
	err := p.db.QueryRowContext(ctx,
		`UPDATE optimizations SET status='failed', error=$1, finished_at=now()
		 WHERE id=$2 AND tenant_id=$3 RETURNING plan_id::text`, errMsg, optID, tenantID).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Optimization{}, ErrNotFound
	}
	if err != nil {
		return model.Optimization{}, err
	}
	if _, err := p.db.ExecContext(ctx, `UPDATE plans SET status='failed', updated_at=now() WHERE id=$1`, planID); err != nil {
		return model.Optimization{}, err
	}
	return p.GetOptimization(ctx, tenantID, optID)
}

func scanOptimization(row *sql.Row) (model.Optimization, error) {
	var o model.Optimization
	var stopsJSON []byte
	var errMsg sql.NullString
	var requested time.Time
	var finished sql.NullTime
	err := row.Scan(&o.ID, &o.PlanID, &o.TenantID, &o.Status, &o.Model, &stopsJSON, &errMsg, &requested, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Optimization{}, ErrNotFound
	}
	if err != nil {
		return model.Optimization{}, err
	}
	if len(stopsJSON) > 0 {
		_ = json.Unmarshal(stopsJSON, &o.Stops)
	}
	o.Error = errMsg.String
	o.RequestedAt = requested.Format(time.RFC3339)
	if finished.Valid {
		o.FinishedAt = finished.Time.Format(time.RFC3339)
	}
	return o, nil
}

const optSelect = `SELECT id::text, plan_id::text, tenant_id, status, model, stops, error, requested_at, finished_at FROM optimizations`

func (p *Postgres) GetOptimization(ctx context.Context, tenantID, optID string) (model.Optimization, error) {
	return scanOptimization(p.db.QueryRowContext(ctx, optSelect+` WHERE id=$1 AND tenant_id=$2`, optID, tenantID))
}

func (p *Postgres) LatestOptimization(ctx context.Context, tenantID, planID string) (model.Optimization, error) {
	return scanOptimization(p.db.QueryRowContext(ctx,
		optSelect+` WHERE plan_id=$1 AND tenant_id=$2 ORDER BY requested_at DESC LIMIT 1`, planID, tenantID))
}

func (p *Postgres) GetThemePreference(ctx context.Context, tenantID string) (string, error) {
	var theme string
	err := p.db.QueryRowContext(ctx, `SELECT theme FROM preferences WHERE tenant_id=$1`, tenantID).Scan(&theme)
	if errors.Is(err, sql.ErrNoRows) {
		return "light", nil
	}
	return theme, err
}

func (p *Postgres) SaveThemePreference(ctx context.Context, tenantID, theme string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO preferences (tenant_id, theme) VALUES ($1,$2)
		 ON CONFLICT (tenant_id) DO UPDATE SET theme=EXCLUDED.theme`, tenantID, theme)
	return err
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	events, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
		sub.ID, sub.TenantID, sub.URL, events, sub.Secret)
	return sub, err
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &events, &s.Secret); err != nil {
		return model.Subscription{}, err
	}
	_ = json.Unmarshal(events, &s.Events)
	return s, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id::text, tenant_id, url, events, secret FROM subscriptions WHERE tenant_id=$1`
	args := []any{tenantID}
	if cursor != "" {
		q += ` AND id::text > $2`
		args = append(args, cursor)
	}
	q += fmt.Sprintf(` ORDER BY id LIMIT %d`, limit+1)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1 AND tenant_id=$2`, id, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,'queued',0,now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		 FROM webhook_deliveries WHERE status='queued' AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4, delivered_at=now() WHERE id=$1`,
			id, lastError, responseCode, latencyMs)
		return err
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=COALESCE($2, next_attempt_at), last_error=$3, response_code=$4, latency_ms=$5 WHERE id=$1`,
		id, next, lastError, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET status='failed', attempts=attempts+1, last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, lastError, responseCode, latencyMs)
	return err
}
