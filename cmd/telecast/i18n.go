// Package main provides localization for the telecast CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Logging":       "ログ",
		"Stream":        "ストリーム",
		"Video":         "映像",

		// Root command
		"Stream a projected display over RTP": "投影された画面をRTPで配信",
		"telecast negotiates a hardware or recorder based H.264 encoder, captures a projected display and streams it with audio to an RTP receiver.": "telecastはハードウェアまたはレコーダー方式のH.264エンコーダーを選択し、投影された画面を音声とともにRTP受信側へ配信します。",
		"YAML configuration file":              "YAML設定ファイル",
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "すべてのログ出力を抑制",
		"Error: %s":                            "エラー: %s",

		// Stream command
		"Stream the projected display until interrupted":          "中断されるまで投影画面を配信",
		"Receiver address, unicast or multicast":                  "受信側アドレス（ユニキャストまたはマルチキャスト）",
		"Write the session description to this file":              "セッション記述をこのファイルに書き出す",
		"Stop after this long (0 streams until interrupted)":      "指定時間後に停止（0は中断まで配信）",
		"Skip the hardware encoder and use the recorder strategy": "ハードウェアエンコーダーを使わずレコーダー方式を使用",
		"Streaming to %s, press Ctrl+C to stop":                   "%s へ配信中です。Ctrl+Cで停止します",
		"Play with: ffplay -protocol_whitelist file,udp,rtp %s":   "再生方法: ffplay -protocol_whitelist file,udp,rtp %s",
		"Interrupted, shutting down...":                           "中断されました。シャットダウン中...",
		"Capability cache unavailable: %s":                        "機能キャッシュを利用できません: %s",
		"Failed to stop projection: %s":                           "投影の停止に失敗しました: %s",

		// Probe command
		"Negotiate an encoder for a video quality and print its configuration": "映像品質に対するエンコーダーを選択し設定を表示",
		"Capture width":              "キャプチャ幅",
		"Capture height":             "キャプチャ高さ",
		"Frame rate":                 "フレームレート",
		"Bitrate in bits per second": "ビットレート（bps）",
		"Quality:          %s":       "品質:             %s",
		"Strategy:         %s":       "方式:             %s",
		"Encoder:          %s":       "エンコーダー:     %s",
		"Fallback used:    %t":       "フォールバック:   %t",
		"From cache:       %t":       "キャッシュ利用:   %t",

		// Geometry command
		"Print the recording geometry for a display and profile": "画面とプロファイルから録画サイズを表示",
		"Display width in pixels":                 "画面の幅（ピクセル）",
		"Display height in pixels":                "画面の高さ（ピクセル）",
		"Display density":                         "画面密度",
		"The display is in portrait orientation":  "画面が縦向き",
		"Profile width (-1 when not reported)":    "プロファイルの幅（不明な場合は-1）",
		"Profile height (-1 when not reported)":   "プロファイルの高さ（不明な場合は-1）",
		"Scale percentage applied to the display": "画面に適用する拡大率（%）",

		// Version command
		"Show version information": "バージョン情報を表示",
		"telecast version %s":      "telecast バージョン %s",
	})
}
