package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/rag-voice/backend/internal/model/assistant"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	defaultURL := os.Getenv("ASSISTANT_WS_URL")
	if defaultURL == "" {
		defaultURL = "ws://localhost:8000/ws/assistant"
	}

	url := flag.String("url", defaultURL, "助手 WebSocket 地址")
	collection := flag.String("collection", "", "检索使用的集合名称，留空则使用服务端默认集合")
	audioPath := flag.String("audio", "", "发送的音频文件路径 (webm/ogg/wav 等 ffmpeg 可解码格式)")
	question := flag.String("ask", "", "以文本方式提问 (ASK 指令)")
	outputPath := flag.String("out", "", "回答音频输出路径 (默认根据格式自动生成)")
	timeout := flag.Duration("timeout", 90*time.Second, "等待回答的超时时间")

	flag.Parse()

	if (*audioPath == "") == (*question == "") {
		flag.Usage()
		log.Fatal("请通过 -audio 或 -ask 二选一指定提问方式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Fatalf("连接助手失败: %v", err)
	}
	defer conn.Close()
	log.Printf("已连接 %s", *url)

	if *collection != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("SET_COLLECTION:"+*collection)); err != nil {
			log.Fatalf("发送 SET_COLLECTION 失败: %v", err)
		}
		log.Printf("已选择集合 %s", *collection)
	}

	if *audioPath != "" {
		data, err := os.ReadFile(*audioPath)
		if err != nil {
			log.Fatalf("读取音频文件失败: %v", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			log.Fatalf("发送音频失败: %v", err)
		}
		log.Printf("已发送音频 %s (%d bytes)", *audioPath, len(data))
	} else {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("ASK:"+*question)); err != nil {
			log.Fatalf("发送问题失败: %v", err)
		}
		log.Printf("已发送问题 %q", *question)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	for {
		var ev assistant.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Fatalf("读取事件失败: %v", err)
		}

		switch ev.Type {
		case assistant.EventText:
			log.Printf("[text] %s", ev.Content)
		case assistant.EventUser:
			log.Printf("[user] %s", ev.Content)
		case assistant.EventError:
			log.Fatalf("[error] %s", ev.Message)
		case assistant.EventAssistant:
			log.Printf("[assistant] %s", ev.Text)
			if ev.Audio != "" {
				writeAudio(ev, *outputPath)
			}
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		default:
			log.Printf("[%s] 未知事件: %+v", ev.Type, ev)
		}
	}
}

func writeAudio(ev assistant.Event, outputPath string) {
	audio, err := base64.StdEncoding.DecodeString(ev.Audio)
	if err != nil {
		log.Fatalf("解码回答音频失败: %v", err)
	}

	format := strings.TrimSpace(ev.Format)
	if format == "" {
		format = "mp3"
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("assistant-answer-%d.%s", time.Now().Unix(), format)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}
	log.Printf("回答音频已写入 %s (%d bytes)", outputPath, len(audio))
}
