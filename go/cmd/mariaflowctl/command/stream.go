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

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func streamCommand(rc *RootCommand) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "stream <statement> [arg...]",
		Short: "Stream a query's rows without materializing the result set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := rc.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}
			cur, err := c.FetchStream(ctx, args[0], params...)
			if err != nil {
				return err
			}

			for row, err := range cur.All(ctx) {
				if err != nil {
					return err
				}
				data, err := yaml.Marshal([]map[string]any{row.Map()})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				if limit > 0 && cur.Delivered() >= limit {
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 0, "Stop after this many rows (0 = all)")
	return cmd
}
