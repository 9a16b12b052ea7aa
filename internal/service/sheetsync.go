package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"license-verifier/internal/model"
)

// SheetSyncService 将激活记录同步到 Google Sheet，按 activation_id 定位行
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetSyncService(enableSync bool, credentialPath, spreadsheetID, sheetName string) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %w", err)
	}

	return NewSheetSyncServiceWithOptions(ctx, spreadsheetID, sheetName, option.WithCredentials(creds))
}

// NewSheetSyncServiceWithOptions builds the sync service from raw client options.
func NewSheetSyncServiceWithOptions(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*SheetSyncService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func activationRow(a *model.Activation) []interface{} {
	return []interface{}{
		a.ActivationID,
		a.Customer,
		a.Issuer,
		a.Fingerprint,
		a.Status,
		a.IssuedAt.UTC().Format(time.RFC3339),
		a.ExpiresAt.UTC().Format(time.RFC3339),
		a.ActivatedAt.UTC().Format(time.RFC3339),
		a.LastCheckedAt.UTC().Format(time.RFC3339),
	}
}

func (s *SheetSyncService) SyncActivation(activation *model.Activation) error {
	if s == nil {
		return nil
	}

	// 先检查工作表是否存在
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Do()
	if err != nil {
		return fmt.Errorf("获取Spreadsheet信息失败: %w", err)
	}
	sheetExists := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.sheetName {
			sheetExists = true
			break
		}
	}
	if !sheetExists {
		return fmt.Errorf("工作表'%s'不存在", s.sheetName)
	}

	// 检查Sheet中是否已存在该激活
	keyResp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, fmt.Sprintf("%s!A2:A", s.sheetName)).Do()
	if err != nil {
		return fmt.Errorf("查询Sheet数据失败: %w", err)
	}

	rowIndex := 0
	for i, row := range keyResp.Values {
		if len(row) > 0 && row[0] == activation.ActivationID {
			rowIndex = i + 2 // +2因为A2开始且数组从0开始
			break
		}
	}

	values := [][]interface{}{activationRow(activation)}

	// 根据是否找到决定更新还是追加
	if rowIndex > 0 {
		rangeData := fmt.Sprintf("%s!A%d:I%d", s.sheetName, rowIndex, rowIndex)
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			rangeData,
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:I",
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	}
	if err != nil {
		return fmt.Errorf("同步到Google Sheet失败: %w", err)
	}

	log.Info().Str("activation_id", activation.ActivationID).Msg("激活记录已同步到Google Sheet")
	return nil
}

// BatchSyncActivations 追加多条记录，不做去重
func (s *SheetSyncService) BatchSyncActivations(activations []model.Activation) error {
	if s == nil || len(activations) == 0 {
		return nil
	}

	var values [][]interface{}
	for i := range activations {
		values = append(values, activationRow(&activations[i]))
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetName+"!A2:I",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Do()
	if err != nil {
		return fmt.Errorf("批量同步失败: %w", err)
	}

	log.Info().Int("count", len(activations)).Msg("批量同步完成")
	return nil
}
