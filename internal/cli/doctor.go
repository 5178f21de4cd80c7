package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/wavalabs/builder/internal/platform/config"
)

const gb = 1024 * 1024 * 1024

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "설정과 시스템 상태를 점검합니다",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadApp()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runDoctor(cmd.OutOrStdout(), cfg, detectSystem())
		},
	}
}

type systemInfo struct {
	CPUName    string
	CPUCores   int
	TotalRAMGB float64
	AvailRAMGB float64
}

func detectSystem() systemInfo {
	info := systemInfo{
		CPUName:  "Unknown CPU",
		CPUCores: runtime.NumCPU(),
	}
	if v, err := mem.VirtualMemory(); err == nil {
		info.TotalRAMGB = float64(v.Total) / float64(gb)
		info.AvailRAMGB = float64(v.Available) / float64(gb)
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		if infos[0].ModelName != "" {
			info.CPUName = infos[0].ModelName
		} else if infos[0].VendorID != "" {
			info.CPUName = infos[0].VendorID
		}
	}
	return info
}

func runDoctor(out io.Writer, cfg config.App, sys systemInfo) error {
	fmt.Fprintln(out, "\n=== 시스템 ===")
	systemTbl := tablewriter.NewWriter(out)
	systemTbl.Header("항목", "값")
	systemTbl.Append([]string{"CPU", fmt.Sprintf("%s (%d cores)", sys.CPUName, sys.CPUCores)})
	systemTbl.Append([]string{"RAM (전체)", fmt.Sprintf("%.1f GB", sys.TotalRAMGB)})
	systemTbl.Append([]string{"RAM (사용 가능)", fmt.Sprintf("%.1f GB", sys.AvailRAMGB)})
	systemTbl.Append([]string{"서버 주소", cfg.Addr()})
	systemTbl.Append([]string{"DB 경로", cfg.DBPath})
	systemTbl.Append([]string{"프론트엔드 경로", cfg.FrontendDir})
	if err := systemTbl.Render(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== 필수 구성 ===")
	problems := prerequisiteProblems(cfg)
	reqTbl := tablewriter.NewWriter(out)
	reqTbl.Header("검사", "결과")
	for _, c := range prerequisiteChecks(cfg) {
		reqTbl.Append([]string{c.name, c.result})
	}
	if err := reqTbl.Render(); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== API 키 / 연동 설정 ===")
	keysTbl := tablewriter.NewWriter(out)
	keysTbl.Header("설정", "상태", "영향")
	for _, row := range configRows(cfg) {
		keysTbl.Append(row)
	}
	if err := keysTbl.Render(); err != nil {
		return err
	}

	if len(problems) > 0 {
		return fmt.Errorf("필수 구성 %d건이 누락되었습니다: %s", len(problems), strings.Join(problems, "; "))
	}
	fmt.Fprintln(out, "\n모든 필수 구성이 준비되었습니다.")
	return nil
}

type prerequisiteCheck struct {
	name    string
	result  string
	problem string
}

func prerequisiteChecks(cfg config.App) []prerequisiteCheck {
	checks := make([]prerequisiteCheck, 0, 2)

	indexPath := filepath.Join(cfg.FrontendDir, "index.html")
	frontend := prerequisiteCheck{name: "프론트엔드 index.html", result: "확인됨"}
	if _, err := os.Stat(indexPath); err != nil {
		frontend.result = "없음"
		frontend.problem = fmt.Sprintf("index.html을 찾을 수 없습니다 (%s)", indexPath)
	}
	checks = append(checks, frontend)

	data := prerequisiteCheck{name: "데이터 디렉터리 쓰기", result: "확인됨"}
	if err := checkDataDirWritable(cfg.DBPath); err != nil {
		data.result = "쓰기 불가"
		data.problem = fmt.Sprintf("DB 경로에 쓸 수 없습니다 (%s): %v", cfg.DBPath, err)
	}
	checks = append(checks, data)

	return checks
}

func prerequisiteProblems(cfg config.App) []string {
	var problems []string
	for _, c := range prerequisiteChecks(cfg) {
		if c.problem != "" {
			problems = append(problems, c.problem)
		}
	}
	return problems
}

func checkDataDirWritable(dbPath string) error {
	dir := filepath.Dir(filepath.Clean(dbPath))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".wava-doctor-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

func configRows(cfg config.App) [][]string {
	checks := []struct {
		name   string
		set    bool
		impact string
	}{
		{"GEMINI_API_KEY", cfg.GeminiAPIKey != "", "쇼핑 이미지 분석, AI 답글/리포트"},
		{"REPLICATE_TOKEN", cfg.ReplicateToken != "", "배경 제거 (누락 시 목업 파이프라인)"},
		{"NAVER_CLIENT_ID/SECRET", cfg.NaverClientID != "" && cfg.NaverClientSecret != "", "네이버 쇼핑 상품 정보 조회"},
		{"FACEBOOK_APP_ID/SECRET", cfg.FacebookAppID != "" && cfg.FacebookAppSecret != "", "Facebook/Instagram 연동"},
		{"THREADS_APP_ID/SECRET", cfg.ThreadsAppID != "" && cfg.ThreadsAppSecret != "", "Threads 연동"},
		{"GOOGLE_CLIENT_ID/SECRET", cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "", "YouTube 연동"},
		{"WAVA_STATE_SECRET", cfg.StateSecret != "", "OAuth state 서명 (선택)"},
	}
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		status := "미설정"
		if c.set {
			status = "설정됨"
		}
		rows = append(rows, []string{c.name, status, c.impact})
	}
	return rows
}
