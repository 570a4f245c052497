package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    budget NUMERIC(14,4),
    spent_amount NUMERIC(14,4) NOT NULL DEFAULT 0,
    start_date TIMESTAMPTZ NULL,
    end_date TIMESTAMPTZ NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS advertisements (
    id SERIAL PRIMARY KEY,
    campaign_id INT REFERENCES campaigns(id) ON DELETE SET NULL,
    page TEXT NOT NULL,
    location TEXT NOT NULL,
    placement TEXT,
    image_url TEXT NOT NULL,
    link_url TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    ad_type TEXT NOT NULL DEFAULT 'banner',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    start_date TIMESTAMPTZ NULL,
    end_date TIMESTAMPTZ NULL,
    display_order INT NOT NULL DEFAULT 0,
    variant_group TEXT,
    variant_name TEXT,
    target_countries JSONB,
    target_device_types JSONB,
    target_user_roles JSONB,
    target_languages JSONB,
    budget NUMERIC(14,4),
    daily_budget NUMERIC(14,4),
    cost_per_click NUMERIC(12,6),
    cost_per_impression NUMERIC(12,6),
    total_budget_spent NUMERIC(16,6) NOT NULL DEFAULT 0,
    conversion_goal TEXT,
    budget_exhausted BOOLEAN NOT NULL DEFAULT FALSE,
    frequency_cap INT NOT NULL DEFAULT 0,
    impression_count BIGINT NOT NULL DEFAULT 0,
    click_count BIGINT NOT NULL DEFAULT 0,
    conversion_count BIGINT NOT NULL DEFAULT 0,
    tags TEXT,
    notes TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ad_user_impressions (
    id SERIAL PRIMARY KEY,
    ad_id INT NOT NULL REFERENCES advertisements(id) ON DELETE CASCADE,
    viewer_key TEXT NOT NULL,
    impression_date DATE NOT NULL,
    impression_count INT NOT NULL DEFAULT 0,
    UNIQUE (ad_id, viewer_key, impression_date)
);

CREATE TABLE IF NOT EXISTS ad_performance_history (
    id SERIAL PRIMARY KEY,
    ad_id INT NOT NULL REFERENCES advertisements(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    impressions BIGINT NOT NULL DEFAULT 0,
    clicks BIGINT NOT NULL DEFAULT 0,
    conversions BIGINT NOT NULL DEFAULT 0,
    ctr DOUBLE PRECISION NOT NULL DEFAULT 0,
    spend NUMERIC(16,6) NOT NULL DEFAULT 0,
    UNIQUE (ad_id, date)
);

-- Performance indexes for ad serving
CREATE INDEX IF NOT EXISTS idx_ads_slot_active ON advertisements (page, location, active) WHERE active = true;
CREATE INDEX IF NOT EXISTS idx_ads_campaign_id ON advertisements (campaign_id);
CREATE INDEX IF NOT EXISTS idx_history_ad_date ON ad_performance_history (ad_id, date);
CREATE INDEX IF NOT EXISTS idx_user_impressions_lookup ON ad_user_impressions (ad_id, viewer_key, impression_date);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const adColumns = `id, campaign_id, page, location, placement, image_url, link_url, title,
    description, ad_type, active, start_date, end_date, display_order,
    variant_group, variant_name,
    target_countries, target_device_types, target_user_roles, target_languages,
    budget, daily_budget, cost_per_click, cost_per_impression, total_budget_spent,
    conversion_goal, budget_exhausted, frequency_cap,
    impression_count, click_count, conversion_count, tags, notes, created_at`

func scanAd(rows *sql.Rows) (models.Advertisement, error) {
	var a models.Advertisement
	var campaignID sql.NullInt64
	var placement, description, variantGroup, variantName sql.NullString
	var conversionGoal, tags, notes sql.NullString
	var start, end sql.NullTime
	var countries, devices, roles, languages sql.NullString

	if err := rows.Scan(&a.ID, &campaignID, &a.Page, &a.Location, &placement,
		&a.ImageURL, &a.LinkURL, &a.Title, &description, &a.Type, &a.Active,
		&start, &end, &a.DisplayOrder, &variantGroup, &variantName,
		&countries, &devices, &roles, &languages,
		&a.Budget, &a.DailyBudget, &a.CostPerClick, &a.CostPerImpression,
		&a.TotalBudgetSpent, &conversionGoal, &a.BudgetExhausted, &a.FrequencyCap,
		&a.ImpressionCount, &a.ClickCount, &a.ConversionCount,
		&tags, &notes, &a.CreatedAt); err != nil {
		return a, fmt.Errorf("scan advertisement: %w", err)
	}

	if campaignID.Valid {
		a.CampaignID = int(campaignID.Int64)
	}
	a.Placement = placement.String
	a.Description = description.String
	a.VariantGroup = variantGroup.String
	a.VariantName = variantName.String
	a.ConversionGoal = conversionGoal.String
	a.Tags = tags.String
	a.Notes = notes.String
	if start.Valid {
		a.StartDate = start.Time
	}
	if end.Valid {
		a.EndDate = end.Time
	}

	for _, f := range []struct {
		raw sql.NullString
		dst *models.StringSet
	}{
		{countries, &a.TargetCountries},
		{devices, &a.TargetDeviceTypes},
		{roles, &a.TargetUserRoles},
		{languages, &a.TargetLanguages},
	} {
		if f.raw.Valid && f.raw.String != "" {
			if err := json.Unmarshal([]byte(f.raw.String), f.dst); err != nil {
				return a, fmt.Errorf("parse targeting set for ad %d: %w", a.ID, err)
			}
		}
	}
	return a, nil
}

func marshalSet(s models.StringSet) interface{} {
	if s.Empty() {
		return nil
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func nullInt(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// LoadAds retrieves every advertisement from the database.
func (p *Postgres) LoadAds(ctx context.Context) ([]models.Advertisement, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT `+adColumns+` FROM advertisements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query advertisements: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ads []models.Advertisement
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ads, nil
}

// LoadCampaigns retrieves campaigns from the database.
func (p *Postgres) LoadCampaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT id, name, budget, spent_amount, start_date, end_date, active, created_at FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var cs []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var start, end sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Budget, &c.SpentAmount, &start, &end, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if start.Valid {
			c.StartDate = start.Time
		}
		if end.Valid {
			c.EndDate = end.Time
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// InsertAd inserts a new advertisement and fills in the generated ID and
// creation time.
func (p *Postgres) InsertAd(ctx context.Context, a *models.Advertisement) error {
	err := p.DB.QueryRowContext(ctx, `INSERT INTO advertisements (
        campaign_id, page, location, placement, image_url, link_url, title,
        description, ad_type, active, start_date, end_date, display_order,
        variant_group, variant_name,
        target_countries, target_device_types, target_user_roles, target_languages,
        budget, daily_budget, cost_per_click, cost_per_impression,
        conversion_goal, frequency_cap, tags, notes) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27
    ) RETURNING id, created_at`,
		nullInt(a.CampaignID), a.Page, a.Location, a.Placement, a.ImageURL, a.LinkURL,
		a.Title, a.Description, a.Type, a.Active, nullTime(a.StartDate), nullTime(a.EndDate),
		a.DisplayOrder, a.VariantGroup, a.VariantName,
		marshalSet(a.TargetCountries), marshalSet(a.TargetDeviceTypes),
		marshalSet(a.TargetUserRoles), marshalSet(a.TargetLanguages),
		a.Budget, a.DailyBudget, a.CostPerClick, a.CostPerImpression,
		a.ConversionGoal, a.FrequencyCap, a.Tags, a.Notes).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert advertisement: %w", err)
	}
	return nil
}

// UpdateAd updates an existing advertisement's configuration. Counters and
// spend are deliberately untouched; only the recorder mutates those.
func (p *Postgres) UpdateAd(ctx context.Context, a models.Advertisement) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE advertisements SET
        campaign_id=$1, page=$2, location=$3, placement=$4, image_url=$5,
        link_url=$6, title=$7, description=$8, ad_type=$9, active=$10,
        start_date=$11, end_date=$12, display_order=$13,
        variant_group=$14, variant_name=$15,
        target_countries=$16, target_device_types=$17, target_user_roles=$18, target_languages=$19,
        budget=$20, daily_budget=$21, cost_per_click=$22, cost_per_impression=$23,
        conversion_goal=$24, budget_exhausted=$25, frequency_cap=$26, tags=$27, notes=$28
        WHERE id=$29`,
		nullInt(a.CampaignID), a.Page, a.Location, a.Placement, a.ImageURL,
		a.LinkURL, a.Title, a.Description, a.Type, a.Active,
		nullTime(a.StartDate), nullTime(a.EndDate), a.DisplayOrder,
		a.VariantGroup, a.VariantName,
		marshalSet(a.TargetCountries), marshalSet(a.TargetDeviceTypes),
		marshalSet(a.TargetUserRoles), marshalSet(a.TargetLanguages),
		a.Budget, a.DailyBudget, a.CostPerClick, a.CostPerImpression,
		a.ConversionGoal, a.BudgetExhausted, a.FrequencyCap, a.Tags, a.Notes, a.ID)
	if err != nil {
		return fmt.Errorf("update advertisement: %w", err)
	}
	return nil
}

// DeleteAd removes an advertisement. Per-ad history and user impression rows
// cascade at the schema level.
func (p *Postgres) DeleteAd(ctx context.Context, id int) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM advertisements WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete advertisement: %w", err)
	}
	return nil
}

// SetAdsActive toggles the active flag for a set of ads in one statement.
func (p *Postgres) SetAdsActive(ctx context.Context, ids []int, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx, `UPDATE advertisements SET active=$1 WHERE id = ANY($2)`, active, intArray(ids))
	if err != nil {
		return fmt.Errorf("set ads active: %w", err)
	}
	return nil
}

// intArray renders a Postgres int array literal. lib/pq's Array helper works
// on int64; keep the conversion in one place.
func intArray(ids []int) interface{} {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", id)
	}
	return out + "}"
}

// InsertCampaign inserts a new campaign and fills in the generated ID.
func (p *Postgres) InsertCampaign(ctx context.Context, c *models.Campaign) error {
	err := p.DB.QueryRowContext(ctx, `INSERT INTO campaigns (name, budget, start_date, end_date, active)
        VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		c.Name, c.Budget, nullTime(c.StartDate), nullTime(c.EndDate), c.Active).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// UpdateCampaign updates an existing campaign.
func (p *Postgres) UpdateCampaign(ctx context.Context, c models.Campaign) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET name=$1, budget=$2, start_date=$3, end_date=$4, active=$5 WHERE id=$6`,
		c.Name, c.Budget, nullTime(c.StartDate), nullTime(c.EndDate), c.Active, c.ID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return nil
}

// DeleteCampaign removes a campaign; owned ads are detached by the FK.
func (p *Postgres) DeleteCampaign(ctx context.Context, id int) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// CounterResult carries the post-increment spend state used for budget
// enforcement.
type CounterResult struct {
	TotalSpent decimal.Decimal
	Budget     decimal.NullDecimal
}

// IncrementImpression atomically bumps the impression counter and accrues
// spend in a single statement, returning the fresh totals. The
// increment-then-check pattern means two racing events may both commit, but
// only values at or past the budget can escape, never an unbounded overrun.
func (p *Postgres) IncrementImpression(ctx context.Context, adID int, cost decimal.Decimal) (CounterResult, error) {
	return p.incrementCounter(ctx, adID, "impression_count", cost)
}

// IncrementClick atomically bumps the click counter and accrues spend.
func (p *Postgres) IncrementClick(ctx context.Context, adID int, cost decimal.Decimal) (CounterResult, error) {
	return p.incrementCounter(ctx, adID, "click_count", cost)
}

// IncrementConversion atomically bumps the conversion counter.
func (p *Postgres) IncrementConversion(ctx context.Context, adID int) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE advertisements SET conversion_count = conversion_count + 1 WHERE id=$1`, adID)
	if err != nil {
		return fmt.Errorf("increment conversion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (p *Postgres) incrementCounter(ctx context.Context, adID int, column string, cost decimal.Decimal) (CounterResult, error) {
	var out CounterResult
	// column is one of two compile-time constants, never user input.
	stmt := fmt.Sprintf(`UPDATE advertisements
        SET %s = %s + 1, total_budget_spent = total_budget_spent + $2
        WHERE id=$1
        RETURNING total_budget_spent, budget`, column, column)
	err := p.DB.QueryRowContext(ctx, stmt, adID, cost).Scan(&out.TotalSpent, &out.Budget)
	if err != nil {
		return out, fmt.Errorf("increment %s: %w", column, err)
	}
	return out, nil
}

// MarkBudgetExhausted persists the recorder's hard stop.
func (p *Postgres) MarkBudgetExhausted(ctx context.Context, adID int) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE advertisements SET budget_exhausted = TRUE WHERE id=$1`, adID)
	if err != nil {
		return fmt.Errorf("mark budget exhausted: %w", err)
	}
	return nil
}

// DayStats carries the accumulated daily totals after a history upsert.
type DayStats struct {
	Impressions int64
	Clicks      int64
	Spend       decimal.Decimal
}

// UpsertDailyPerformance accumulates deltas into the (ad, day) history row,
// recomputing CTR from the fresh totals inside the same statement. Returns
// the day's totals so the recorder can enforce daily budgets.
func (p *Postgres) UpsertDailyPerformance(ctx context.Context, adID int, day string, dImp, dClick, dConv int64, spend decimal.Decimal) (DayStats, error) {
	var out DayStats
	var initialCTR float64
	if dImp > 0 {
		initialCTR = float64(dClick) / float64(dImp)
	}
	err := p.DB.QueryRowContext(ctx, `INSERT INTO ad_performance_history
        (ad_id, date, impressions, clicks, conversions, ctr, spend)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (ad_id, date) DO UPDATE SET
            impressions = ad_performance_history.impressions + EXCLUDED.impressions,
            clicks      = ad_performance_history.clicks + EXCLUDED.clicks,
            conversions = ad_performance_history.conversions + EXCLUDED.conversions,
            spend       = ad_performance_history.spend + EXCLUDED.spend,
            ctr = CASE WHEN ad_performance_history.impressions + EXCLUDED.impressions > 0
                  THEN (ad_performance_history.clicks + EXCLUDED.clicks)::float8
                       / (ad_performance_history.impressions + EXCLUDED.impressions)::float8
                  ELSE 0 END
        RETURNING impressions, clicks, spend`,
		adID, day, dImp, dClick, dConv, initialCTR, spend).Scan(&out.Impressions, &out.Clicks, &out.Spend)
	if err != nil {
		return out, fmt.Errorf("upsert daily performance: %w", err)
	}
	return out, nil
}

// UpsertUserImpression durably records one more impression for the
// (ad, viewer, day) triple. Redis answers the hot cap check; this row is the
// retained record.
func (p *Postgres) UpsertUserImpression(ctx context.Context, adID int, viewerKey, day string) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO ad_user_impressions (ad_id, viewer_key, impression_date, impression_count)
        VALUES ($1,$2,$3,1)
        ON CONFLICT (ad_id, viewer_key, impression_date)
        DO UPDATE SET impression_count = ad_user_impressions.impression_count + 1`,
		adID, viewerKey, day)
	if err != nil {
		return fmt.Errorf("upsert user impression: %w", err)
	}
	return nil
}

// AddCampaignSpend accrues spend on the owning campaign and reports whether
// the campaign budget is now exhausted.
func (p *Postgres) AddCampaignSpend(ctx context.Context, campaignID int, amount decimal.Decimal) (exceeded bool, err error) {
	var spent decimal.Decimal
	var budget decimal.NullDecimal
	err = p.DB.QueryRowContext(ctx, `UPDATE campaigns SET spent_amount = spent_amount + $2
        WHERE id=$1 RETURNING spent_amount, budget`, campaignID, amount).Scan(&spent, &budget)
	if err != nil {
		return false, fmt.Errorf("add campaign spend: %w", err)
	}
	if budget.Valid && spent.GreaterThanOrEqual(budget.Decimal) {
		return true, nil
	}
	return false, nil
}

// DeactivateCampaign marks a campaign inactive, pulling its ads out of
// delivery on the next snapshot refresh.
func (p *Postgres) DeactivateCampaign(ctx context.Context, campaignID int) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET active = FALSE WHERE id=$1`, campaignID)
	if err != nil {
		return fmt.Errorf("deactivate campaign: %w", err)
	}
	return nil
}

// PerformanceRow is one day of an ad's history for admin reporting.
type PerformanceRow struct {
	Date        string          `json:"date"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	CTR         float64         `json:"ctr"`
	Spend       decimal.Decimal `json:"spend"`
}

// LoadPerformanceHistory returns an ad's daily rows between two dates
// (inclusive), newest first.
func (p *Postgres) LoadPerformanceHistory(ctx context.Context, adID int, from, to string) ([]PerformanceRow, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT date::text, impressions, clicks, conversions, ctr, spend
        FROM ad_performance_history WHERE ad_id=$1 AND date BETWEEN $2 AND $3 ORDER BY date DESC`, adID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query performance history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var out []PerformanceRow
	for rows.Next() {
		var r PerformanceRow
		if err := rows.Scan(&r.Date, &r.Impressions, &r.Clicks, &r.Conversions, &r.CTR, &r.Spend); err != nil {
			return nil, fmt.Errorf("scan performance row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
