package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CaioWing/iotgateway/internal/domain"
)

type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

const deviceColumns = `id, device_id, type, msisdn, subscriber_id, vendor, endpoint, metadata, created_at, updated_at`

func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	if d.Metadata == nil {
		d.Metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO devices (device_id, type, msisdn, subscriber_id, vendor, endpoint, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, d.DeviceID, d.Type, d.MSISDN, d.SubscriberID, d.Vendor, d.Endpoint, metadataJSON).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return wrap("insert device", err)
	}
	return nil
}

func (r *DeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		return nil, wrap("get device", err)
	}
	return d, nil
}

func (r *DeviceRepo) GetSpeakerByMSISDN(ctx context.Context, msisdn string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE msisdn = $1 AND type = $2
		ORDER BY id
		LIMIT 1
	`, msisdn, domain.DeviceTypeSpeaker)
	d, err := scanDevice(row)
	if err != nil {
		return nil, wrap("get speaker by msisdn", err)
	}
	return d, nil
}

func (r *DeviceRepo) List(ctx context.Context, f domain.DeviceFilter) ([]*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	var args []interface{}
	if f.MSISDN != nil {
		query += ` WHERE msisdn = $1`
		args = append(args, *f.MSISDN)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list devices", err)
	}
	defer rows.Close()

	devices := []*domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, wrap("scan device", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list devices", err)
	}
	return devices, nil
}

func (r *DeviceRepo) Update(ctx context.Context, deviceID string, upd domain.DeviceUpdate) (*domain.Device, error) {
	var metadataJSON []byte
	if upd.Metadata != nil {
		var err error
		if metadataJSON, err = json.Marshal(upd.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE devices SET
			msisdn        = COALESCE($2, msisdn),
			subscriber_id = COALESCE($3, subscriber_id),
			vendor        = COALESCE($4, vendor),
			endpoint      = COALESCE($5, endpoint),
			metadata      = COALESCE($6, metadata),
			updated_at    = NOW()
		WHERE device_id = $1
		RETURNING `+deviceColumns,
		deviceID, upd.MSISDN, upd.SubscriberID, upd.Vendor, upd.Endpoint, metadataJSON)
	d, err := scanDevice(row)
	if err != nil {
		return nil, wrap("update device", err)
	}
	return d, nil
}

func (r *DeviceRepo) Delete(ctx context.Context, deviceID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return wrap("delete device", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	d := &domain.Device{}
	var metadataJSON []byte
	if err := row.Scan(
		&d.ID, &d.DeviceID, &d.Type, &d.MSISDN, &d.SubscriberID, &d.Vendor,
		&d.Endpoint, &metadataJSON, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil || d.Metadata == nil {
		d.Metadata = map[string]interface{}{}
	}
	return d, nil
}
