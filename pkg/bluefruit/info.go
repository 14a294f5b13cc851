// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bluefruit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Info is what the module reports about itself.
type Info struct {
	Identity []string // ATI
	Services []string // AT+GATTLIST, empty if the module has no GATT services
}

// DumpInfo queries ATI and AT+GATTLIST and logs the result.
func DumpInfo(ctx context.Context, ex Executor, logger *slog.Logger) (Info, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ati, err := ex.ExecuteOKContext(ctx, "ATI", 0)
	if err != nil {
		return Info{}, err
	}
	gatt, err := ex.ExecuteOKContext(ctx, "AT+GATTLIST", 0)
	if err != nil {
		return Info{}, err
	}

	info := Info{Identity: lines(ati), Services: lines(gatt)}

	logger.Info("result of ATI")
	for _, line := range info.Identity {
		logger.Info("    " + line)
	}
	if len(info.Services) == 0 {
		logger.Info("no GATT services")
		return info, nil
	}
	logger.Info("result of AT+GATTLIST")
	for _, line := range info.Services {
		logger.Info("    " + line)
	}
	return info, nil
}

// Connected reports whether a central is connected to the module.
func Connected(ctx context.Context, ex Executor) (bool, error) {
	resp, err := ex.ExecuteOKContext(ctx, "AT+GAPGETCONN", 0)
	if err != nil {
		return false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(resp)))
	if err != nil {
		return false, fmt.Errorf("%w: AT+GAPGETCONN answered %q", ErrDecode, resp)
	}
	return n == 1, nil
}

// FormatUUID128 renders u the way AT+GATTADDSERVICE expects: uppercase hex
// bytes separated by dashes, most significant byte first.
func FormatUUID128(u uuid.UUID) string {
	var b strings.Builder
	for i, x := range u {
		if i > 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%02X", x)
	}
	return b.String()
}
