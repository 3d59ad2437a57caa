// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func statsCommand(rc *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Connect, warm the pool, and print a pool statistics snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := rc.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			stats, err := c.Stats()
			if err != nil {
				return err
			}
			out := map[string]any{
				"addr":      c.Addr(),
				"size":      stats.Size,
				"max_size":  stats.MaxSize,
				"in_use":    stats.InUse,
				"available": stats.Available,
				"gets":      stats.GetCount,
				"waits":     stats.WaitCount,
				"wait_time": stats.WaitTime.Round(time.Microsecond).String(),
				"discarded": stats.DiscardedCount,
			}
			data, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
