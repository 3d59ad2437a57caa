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

package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/mariaflow/mariaflow/go/dataframe"
)

// FetchFrame runs a query and collects the result set into a columnar
// Frame.
func (c *Client) FetchFrame(ctx context.Context, query string, args ...any) (*dataframe.Frame, error) {
	rows, err := c.FetchAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return dataframe.FromRows(rows)
}

// InsertFrame batch-inserts every row of the Frame into table using a
// single generated INSERT statement. NaN cells insert as NULL. The
// table and column names come from the caller, not from user input;
// they are interpolated into the statement text.
func (c *Client) InsertFrame(ctx context.Context, table string, frame *dataframe.Frame) (int64, error) {
	columns := frame.Columns()
	if len(columns) == 0 {
		return 0, fmt.Errorf("frame has no columns")
	}
	if frame.Rows() == 0 {
		return 0, nil
	}

	sets, err := frame.ParamSets()
	if err != nil {
		return 0, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders)
	return c.ExecuteMany(ctx, query, sets)
}
