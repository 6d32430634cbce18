// Package metrics records one InfluxDB point per sync run.
package metrics

import (
	"fmt"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"
	"k8s.io/klog"

	"github.com/fernwallet/banksync/internal/config"
)

// SyncRun describes one completed refresh.
type SyncRun struct {
	RunID       string
	UserID      string
	Strategy    string
	Fetched     int
	Merged      int
	Suggestions int
	Duration    time.Duration
}

// Recorder writes sync-run measurements. A nil Recorder drops everything,
// so metrics stay optional.
type Recorder struct {
	client      influx.Client
	database    string
	measurement string
}

// CreateRecorder connects to the configured InfluxDB endpoint. It returns
// (nil, nil) when no endpoint is configured.
func CreateRecorder(secrets config.InfluxSecrets, conf config.InfluxConfig) (*Recorder, error) {
	if secrets.InfluxEndpoint == "" {
		return nil, nil
	}

	client, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     secrets.InfluxEndpoint,
		Username: secrets.InfluxUsername,
		Password: secrets.InfluxPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating InfluxDB Client: %s", err.Error())
	}

	recorder := &Recorder{
		client:      client,
		database:    conf.Database,
		measurement: conf.Measurement,
	}

	err = recorder.createDatabase()
	if err != nil {
		return nil, err
	}

	return recorder, nil
}

func (r *Recorder) createDatabase() error {
	q := influx.NewQuery("CREATE DATABASE "+r.database, "", "")
	if response, err := r.client.Query(q); err == nil && response.Error() != nil {
		return response.Error()
	}
	return nil
}

// RecordSync writes one point for the run. Failures are logged, never
// propagated: metrics must not fail a sync.
func (r *Recorder) RecordSync(run SyncRun) {
	if r == nil {
		return
	}

	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  r.database,
		Precision: "s",
	})
	if err != nil {
		klog.Errorf("Error creating InfluxDB point batch: %s", err.Error())
		return
	}

	tags := map[string]string{
		"user":     run.UserID,
		"strategy": run.Strategy,
	}

	fields := map[string]interface{}{
		"run_id":      run.RunID,
		"fetched":     run.Fetched,
		"merged":      run.Merged,
		"suggestions": run.Suggestions,
		"duration_ms": run.Duration.Milliseconds(),
	}

	pt, err := influx.NewPoint(r.measurement, tags, fields, time.Now())
	if err != nil {
		klog.Errorf("Error creating InfluxDB point: %s", err.Error())
		return
	}

	bp.AddPoint(pt)

	err = r.client.Write(bp)
	if err != nil {
		klog.Errorf("Error writing to influx: %s", err.Error())
	}
}
