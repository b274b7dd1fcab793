package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// 行项导入表头，与 BuildItemTemplate 生成的模板一致
var itemImportHeaders = []string{
	"product_name", "product_code", "quantity", "serial_number",
	"model_number", "voltage", "notes",
}

// ImportItems 从Excel批量导入行项。第一行为表头，空行跳过；
// 任何一行解析失败整批回滚。锁定订单与删除/新增一样拒绝导入。
func (s *OrderService) ImportItems(ctx context.Context, orderID, fileName string, reader io.Reader, actor Actor) ([]entity.OrderItem, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, validationErr("cannot read excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, validationErr("excel file has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, validationErr("cannot read sheet %q: %v", sheet, err)
	}
	if len(rows) < 2 {
		return nil, validationErr("excel file has no data rows")
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["product_name"]; !ok {
		return nil, validationErr("missing required column product_name")
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	now := time.Now()
	items := make([]entity.OrderItem, 0, len(rows)-1)
	for n, row := range rows[1:] {
		empty := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		name := cell(row, "product_name")
		if name == "" {
			return nil, validationErr("row %d: product_name cannot be empty", n+2)
		}
		qty := 1
		if raw := cell(row, "quantity"); raw != "" {
			qty, err = strconv.Atoi(raw)
			if err != nil || qty <= 0 {
				return nil, validationErr("row %d: invalid quantity %q", n+2, raw)
			}
		}

		items = append(items, entity.OrderItem{
			ProductName:   name,
			ProductCode:   cell(row, "product_code"),
			Quantity:      qty,
			SerialNumber:  cell(row, "serial_number"),
			ModelNumber:   cell(row, "model_number"),
			Voltage:       cell(row, "voltage"),
			Notes:         cell(row, "notes"),
			DimensionUnit: "cm",
			WeightUnit:    "kg",
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	if len(items) == 0 {
		return nil, validationErr("excel file has no data rows")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if order.IsLocked {
			// 拒绝记录独立提交，回滚不影响
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeOrder, order.ID, "", entity.ActionEditBlocked,
				nil, entity.BlockedMetadata{Reason: "item import attempted while order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order %s is locked: items cannot be imported", orderID)
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := s.orderRepo.CreateItem(ctx, tx, &items[i]); err != nil {
				return fmt.Errorf("import item %q: %w", items[i].ProductName, err)
			}
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionImport,
			nil, entity.ImportMetadata{FileName: fileName, RowCount: len(rows) - 1, ItemCount: len(items)}, actor)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// BuildItemTemplate 生成行项导入模板
func BuildItemTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range itemImportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	sample := []interface{}{"Batching plant model X", "BPX-100", 2, "SN-0001", "X-100", "380V", ""}
	for i, v := range sample {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return nil, err
		}
	}
	return f, nil
}
