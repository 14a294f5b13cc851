// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lumen/internal/gatt"
	"github.com/Thermoquad/lumen/pkg/bluefruit"
)

var charRaw bool

var charCmd = &cobra.Command{
	Use:   "char",
	Short: "Read and write the node's characteristics on the module",
	Long: `Read and write the node's characteristics through AT+GATTCHAR, the way
the node itself does. Characteristics are named by index or by name.`,
}

var charListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the characteristic table with current values",
	Args:  cobra.NoArgs,
	RunE:  runCharList,
}

var charGetCmd = &cobra.Command{
	Use:   "get CHAR",
	Short: "Read one characteristic",
	Args:  cobra.ExactArgs(1),
	RunE:  runCharGet,
}

var charSetCmd = &cobra.Command{
	Use:   "set CHAR VALUE",
	Short: "Write one characteristic",
	Long: `Write one characteristic. VALUE is in the characteristic's unit
(lux, g, V), true/false for booleans, or the raw integer with --raw.`,
	Example: `  lumen char set light_threshold_wr 25.5
  lumen char set 8 --raw 1500`,
	Args: cobra.ExactArgs(2),
	RunE: runCharSet,
}

func init() {
	rootCmd.AddCommand(charCmd)
	charCmd.AddCommand(charListCmd, charGetCmd, charSetCmd)
	charCmd.PersistentFlags().BoolVar(&charRaw, "raw", false, "Show and accept raw integer values")
}

// lookupChar resolves an index or a name.
func lookupChar(arg string) (bluefruit.Characteristic, error) {
	if idx, err := strconv.Atoi(arg); err == nil {
		if c, ok := gatt.Characteristics.Get(idx); ok {
			return c, nil
		}
		return bluefruit.Characteristic{}, fmt.Errorf("no characteristic at index %d", idx)
	}
	for _, c := range gatt.Characteristics.All() {
		if strings.EqualFold(c.Name, arg) {
			return c, nil
		}
	}
	return bluefruit.Characteristic{}, fmt.Errorf("unknown characteristic %q", arg)
}

// parseCharValue converts user text to a value in c's format.
func parseCharValue(c bluefruit.Characteristic, text string) (bluefruit.Value, error) {
	if charRaw {
		u, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			return bluefruit.Value{}, fmt.Errorf("invalid raw value %q: %w", text, err)
		}
		if u > c.Format.Max() {
			return bluefruit.Value{}, fmt.Errorf("raw value %d exceeds %d", u, c.Format.Max())
		}
		return c.Format.FromUint(u), nil
	}
	if c.Format.Kind == bluefruit.KindBool {
		b, err := strconv.ParseBool(text)
		if err != nil {
			return bluefruit.Value{}, fmt.Errorf("invalid boolean %q: %w", text, err)
		}
		return c.Format.FromBool(b), nil
	}
	x, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return bluefruit.Value{}, fmt.Errorf("invalid number %q: %w", text, err)
	}
	v, err := c.Format.ParseFloat(x)
	if err != nil {
		return bluefruit.Value{}, fmt.Errorf("%s: %w", c.Name, err)
	}
	return v, nil
}

func formatCharValue(c bluefruit.Characteristic, v bluefruit.Value) string {
	switch {
	case charRaw:
		return fmt.Sprintf("%d", v.Raw)
	case v.IsSentinel():
		return "unset"
	case c.Unit != "":
		return v.String() + " " + c.Unit
	default:
		return v.String()
	}
}

func runCharList(cmd *cobra.Command, args []string) error {
	sess, err := openSession(slog.Default(), false)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Printf("%3s  %-20s %-6s  %-10s %s\n", "IDX", "NAME", "UUID", "ACCESS", "VALUE")
	for _, c := range gatt.Characteristics.All() {
		v, err := c.ReadContext(cmd.Context(), sess.d)
		if err != nil {
			return err
		}
		fmt.Printf("%3d  %-20s 0x%04X  %-10s %s\n", c.Index, c.Name, c.UUID, c.Access, formatCharValue(c, v))
	}
	return nil
}

func runCharGet(cmd *cobra.Command, args []string) error {
	c, err := lookupChar(args[0])
	if err != nil {
		return err
	}
	sess, err := openSession(slog.Default(), false)
	if err != nil {
		return err
	}
	defer sess.Close()

	v, err := c.ReadContext(cmd.Context(), sess.d)
	if err != nil {
		return err
	}
	fmt.Println(formatCharValue(c, v))
	return nil
}

func runCharSet(cmd *cobra.Command, args []string) error {
	c, err := lookupChar(args[0])
	if err != nil {
		return err
	}
	v, err := parseCharValue(c, args[1])
	if err != nil {
		return err
	}
	sess, err := openSession(slog.Default(), false)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := c.WriteContext(cmd.Context(), sess.d, v); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", c.Name, formatCharValue(c, v))
	return nil
}
