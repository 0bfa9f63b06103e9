package service

import (
	"context"
	"math"

	"github.com/google/uuid"

	perr "hangar/internal/platform/errors"
	"hangar/internal/platform/logger"
	arcdom "hangar/internal/services/archivist/domain"
)

// SpeedDetector flags a sample when the implied ground speed from the
// previous sample exceeds MaxSpeedMS
type SpeedDetector struct {
	MaxSpeedMS float64
}

// Flag reports whether cur is implausible relative to prev
func (d SpeedDetector) Flag(prev, cur arcdom.Position) bool {
	dt := cur.RecordedAt.Sub(prev.RecordedAt).Seconds()
	if dt <= 0 {
		return false
	}
	limit := d.MaxSpeedMS
	if limit <= 0 {
		limit = 80
	}
	return haversineMeters(prev.Lat, prev.Lon, cur.Lat, cur.Lon)/dt > limit
}

// haversineMeters returns the great circle distance between two fixes
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusM = 6371000
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// sampleKey identifies an exact duplicate archived sample
type sampleKey struct {
	at  int64
	lat float64
	lon float64
	alt float64
}

// Optimize removes exact duplicates and detector flagged samples for one
// drone inside the window. Detection is a pure function of stored rows and
// deletion is the only mutation, so a second pass removes nothing
func (s *Svc) Optimize(ctx context.Context, droneID int64, w arcdom.Window) (arcdom.CompactionReport, error) {
	var rep arcdom.CompactionReport
	if droneID <= 0 {
		return rep, perr.InvalidArgf("drone id %d", droneID)
	}
	if err := w.Validate(); err != nil {
		return rep, err
	}

	ctx = logger.WithDrone(ctx, droneID)
	r := s.repo()

	positions, err := r.PositionsInWindow(ctx, droneID, w)
	if err != nil {
		return rep, err
	}
	if len(positions) == 0 {
		return rep, nil
	}

	seen := make(map[sampleKey]struct{}, len(positions))
	doomed := make(map[uuid.UUID]struct{})
	var dups, anomalies int64

	// first pass: exact duplicates by (recorded_at, lat, lon, alt)
	kept := positions[:0:0]
	for _, p := range positions {
		k := sampleKey{at: p.RecordedAt.UnixNano(), lat: p.Lat, lon: p.Lon, alt: p.Alt}
		if _, dup := seen[k]; dup {
			doomed[p.ID] = struct{}{}
			dups++
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, p)
	}

	// second pass: detector over surviving samples. prev advances only past
	// unflagged samples, so every pair left adjacent by the deletion has
	// already been judged and a rerun over the result removes nothing
	det := s.Detector
	if det == nil {
		det = SpeedDetector{MaxSpeedMS: s.Cfg.MaxSpeedMS}
	}
	prev := 0
	for i := 1; i < len(kept); i++ {
		if det.Flag(kept[prev], kept[i]) {
			doomed[kept[i].ID] = struct{}{}
			anomalies++
			continue
		}
		prev = i
	}

	if len(doomed) == 0 {
		return rep, nil
	}

	ids := make([]uuid.UUID, 0, len(doomed))
	for id := range doomed {
		ids = append(ids, id)
	}
	removed, err := r.DeleteArchivedPositions(ctx, droneID, ids)
	if err != nil {
		return rep, err
	}

	rep = arcdom.CompactionReport{
		DuplicatesRemoved: dups,
		AnomaliesRemoved:  anomalies,
		TotalRemoved:      removed,
	}
	logger.C(ctx).Info().
		Int64("duplicates", rep.DuplicatesRemoved).
		Int64("anomalies", rep.AnomaliesRemoved).
		Int64("removed", rep.TotalRemoved).
		Time("from", w.From).
		Time("to", w.To).
		Msg("archivist: compaction pass done")
	return rep, nil
}
