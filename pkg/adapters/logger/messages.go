package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Session lifecycle (info)
		"Session streaming to %s":            "%s へのセッション配信を開始しました",
		"Session stopped":                    "セッションを停止しました",
		"Session failed on the %s track: %s": "%s トラックでセッションが失敗しました: %s",
		"Session description written to %s": "セッション記述を %s に書き出しました",

		// Recording
		"Recording at %dx%d (density %d)": "%dx%d (密度 %d) で録画します",
		"Recording failed to start: %s":   "録画を開始できませんでした: %s",
		"Recording stopped":               "録画を停止しました",

		// Tracks
		"Audio configured: %s %s":                     "音声を設定しました: %s %s",
		"Audio streaming to %s:%d":                    "音声を %s:%d へ配信中",
		"Video configured: %s using the %s strategy":  "映像を設定しました: %s (%s 方式)",
		"Video streaming to %s:%d":                    "映像を %s:%d へ配信中",
		"Video stream stopped":                        "映像の配信を停止しました",
		"Reconfiguring video: %+v":                    "映像を再設定します: %+v",
		"Failed to release audio resources: %s":       "音声リソースの解放に失敗しました: %s",
		"Failed to release video resources: %s":       "映像リソースの解放に失敗しました: %s",
		"Virtual display release failed: %s":          "仮想ディスプレイの解放に失敗しました: %s",
		"Display %s stopped rendering: %s":            "ディスプレイ %s の描画が停止しました: %s",
		"Started %s encoder at %dx%d":                 "%s エンコーダーを %dx%d で開始しました",
		"Started recorder at %dx%d":                   "レコーダーを %dx%d で開始しました",
		"Failed to stop recording: %s":                "録画の停止に失敗しました: %s",
		"Recorder reached its maximum duration":       "レコーダーが最大録画時間に達しました",
		"Recorder did not finish within %s":           "レコーダーが %s 以内に終了しませんでした",
		"Recorder payload located":                    "レコーダーのペイロード位置を検出しました",
		"Recorder configuration for %s: profile %s":   "%s のレコーダー設定: プロファイル %s",
		"Failed to remove test recording %s: %s":      "テスト録画 %s を削除できませんでした: %s",
		"Surface encoder %s accepts %s":               "サーフェスエンコーダー %s は %s に対応しています",
		"Hardware encoder %s accepted %dx%d":          "ハードウェアエンコーダー %s が %dx%d を受け付けました",
		"Hardware encoder %s rejected: %s":            "ハードウェアエンコーダー %s は使用できません: %s",
		"Probe wait interrupted: %s":                  "プローブの待機が中断されました: %s",

		// Capability cache
		"Using cached configuration for %s":     "%s のキャッシュ済み設定を使用します",
		"Ignoring cached configuration %s: %s":  "キャッシュ済み設定 %s を無視します: %s",
		"Failed to cache configuration: %s":     "設定をキャッシュできませんでした: %s",
		"Ignoring corrupt preferences %s: %s":   "破損した設定ファイル %s を無視します: %s",
		"Ignoring unreadable preferences %s: %s": "読み込めない設定ファイル %s を無視します: %s",
		"Resolution %dx%d not supported by a surface encoder, using the recorder: %s": "解像度 %dx%d はサーフェスエンコーダーが対応していないためレコーダーを使用します: %s",

		// RTP
		"RTP %s input ended":        "RTP %s の入力が終了しました",
		"RTP %s stream failed: %s":  "RTP %s のストリームが失敗しました: %s",

		// MQTT
		"Connected to MQTT broker %s":   "MQTTブローカー %s に接続しました",
		"MQTT connection lost: %s":      "MQTT接続が切断されました: %s",
		"MQTT publish of %s failed: %s": "MQTTへの %s の送信に失敗しました: %s",
		"MQTT publish of %s timed out":  "MQTTへの %s の送信がタイムアウトしました",
		"Failed to encode %s event: %s": "%s イベントのエンコードに失敗しました: %s",
	})
}
