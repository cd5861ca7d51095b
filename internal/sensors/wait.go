// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/motion_monitor/internal/imu"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
)

// ErrStartupTimeout is returned when WaitForData runs out of attempts.
var ErrStartupTimeout = errors.New("no UDP data received")

// WaitForData polls src until one datagram arrives, sleeping interval between
// attempts. maxAttempts bounds the number of receive attempts; 0 polls until
// ctx is cancelled. The received frame is returned so it can be ingested.
func WaitForData(ctx context.Context, src Receiver, interval time.Duration, maxAttempts int) (imu.Frame, error) {
	ep := src.Endpoint()
	monitoring.Logf("%s: waiting for UDP data...", ep)

	for attempt := 1; maxAttempts == 0 || attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return imu.Frame{}, err
		}

		res := src.TryReceive()
		switch res.Status {
		case Data:
			monitoring.Logf("%s: UDP data stream detected", ep)
			return res.Frame, nil
		case Failed:
			if err := ctx.Err(); err != nil {
				return imu.Frame{}, err
			}
			monitoring.Logf("%s: receive error while waiting: %v", ep, res.Err)
		default:
			monitoring.Logf("%s: no data received yet (attempt %d), waiting for UDP data...", ep, attempt)
		}

		if maxAttempts != 0 && attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, interval); err != nil {
			return imu.Frame{}, err
		}
	}

	return imu.Frame{}, fmt.Errorf("%s: %w after %d attempts", ep, ErrStartupTimeout, maxAttempts)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
