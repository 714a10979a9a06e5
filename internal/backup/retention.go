package backup

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	filePrefix = "chronicle-backup-"
	fileSuffix = ".json"
	// stampLayout sorts lexically and carries microseconds so two archives
	// written in the same second do not collide.
	stampLayout = "20060102-150405.000000"
)

func archiveName(at time.Time) string {
	return filePrefix + at.UTC().Format(stampLayout) + fileSuffix
}

// listArchives lists the archive files in dir, newest first. The timestamp
// comes from the file name; files whose name does not parse fall back to
// their modification time.
func listArchives(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		ts, err := time.ParseInLocation(stampLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), time.UTC)
		if err != nil {
			ts = fi.ModTime().UTC()
		}
		out = append(out, Info{Path: filepath.Join(dir, name), Timestamp: ts, Size: fi.Size()})
	}

	slices.SortFunc(out, func(a, b Info) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.Path, a.Path)
	})
	return out, nil
}

// expired returns the archives the policy no longer keeps at now.
func expired(archives []Info, policy RetentionPolicy, now time.Time) []string {
	var hourly, daily, weekly, monthly, drop []string
	for _, a := range archives {
		switch age := now.Sub(a.Timestamp); {
		case age < 24*time.Hour:
			hourly = append(hourly, a.Path)
		case age < 7*24*time.Hour:
			daily = append(daily, a.Path)
		case age < 30*24*time.Hour:
			weekly = append(weekly, a.Path)
		case age < 365*24*time.Hour:
			monthly = append(monthly, a.Path)
		default:
			drop = append(drop, a.Path)
		}
	}
	keep := func(tier []string, n int) {
		if len(tier) > n {
			drop = append(drop, tier[max(n, 0):]...)
		}
	}
	keep(hourly, policy.Hourly)
	keep(daily, policy.Daily)
	keep(weekly, policy.Weekly)
	keep(monthly, policy.Monthly)
	return drop
}

// applyRetention removes the archives in dir the policy no longer keeps and
// returns how many were removed. It keeps going past individual failures.
func applyRetention(dir string, policy RetentionPolicy, now time.Time) (int, error) {
	archives, err := listArchives(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var lastErr error
	for _, path := range expired(archives, policy, now) {
		if err := os.Remove(path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return removed, nil
}
