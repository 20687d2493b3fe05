package plugin

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"sort"
	"strings"

	"github.com/LENAX/stageflow/pkg/core/events"
)

// SendFunc 邮件投递函数，签名与 smtp.SendMail 一致
type SendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailPlugin 邮件通知插件（对外导出）
// 参数 notify_assignee=true 时，额外把事件中的执行人（需为邮箱地址）加入收件人
type EmailPlugin struct {
	name           string
	smtpHost       string
	smtpPort       int
	username       string
	password       string
	from           string
	to             []string
	notifyAssignee bool
	enabled        bool
	send           SendFunc
}

// NewEmailPlugin 创建邮件通知插件（对外导出）
func NewEmailPlugin() Plugin {
	return &EmailPlugin{
		name: "email",
		send: smtp.SendMail,
	}
}

// NewEmailPluginWithSender 使用自定义投递函数创建邮件插件（测试使用）
func NewEmailPluginWithSender(send SendFunc) *EmailPlugin {
	return &EmailPlugin{name: "email", send: send}
}

// Name 插件名称（实现Plugin接口）
func (e *EmailPlugin) Name() string {
	return e.name
}

// Init 初始化插件（实现Plugin接口）
func (e *EmailPlugin) Init(params map[string]string) error {
	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}

	// SMTP端口（默认25）
	e.smtpPort = 25
	if portStr := params["smtp_port"]; portStr != "" {
		if _, err := fmt.Sscanf(portStr, "%d", &e.smtpPort); err != nil {
			return fmt.Errorf("smtp_port参数格式错误: %w", err)
		}
	}

	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}

	// 收件人地址（多个用逗号分隔）
	e.to = e.to[:0]
	for _, addr := range strings.Split(params["to"], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			e.to = append(e.to, addr)
		}
	}
	e.notifyAssignee = params["notify_assignee"] == "true"
	if len(e.to) == 0 && !e.notifyAssignee {
		return fmt.Errorf("to参数不能为空")
	}

	e.enabled = true
	log.Printf("✅ [EmailPlugin] 初始化完成: SMTP=%s:%d, From=%s, To=%v", e.smtpHost, e.smtpPort, e.from, e.to)
	return nil
}

// Execute 执行邮件发送（实现Plugin接口）
func (e *EmailPlugin) Execute(data interface{}) error {
	if !e.enabled {
		return fmt.Errorf("邮件插件未初始化")
	}
	pluginData, ok := data.(PluginData)
	if !ok {
		return fmt.Errorf("插件数据类型错误")
	}

	recipients := e.recipients(pluginData)
	if len(recipients) == 0 {
		log.Printf("⚠️ [EmailPlugin] 没有收件人，跳过: Event=%s, TaskID=%s", pluginData.Event, pluginData.TaskID)
		return nil
	}

	subject := buildSubject(pluginData)
	body := buildBody(pluginData)
	if err := e.sendEmail(recipients, subject, body); err != nil {
		log.Printf("❌ [EmailPlugin] 发送邮件失败: %v", err)
		return err
	}

	log.Printf("✅ [EmailPlugin] 邮件发送成功: Event=%s, Subject=%s", pluginData.Event, subject)
	return nil
}

func (e *EmailPlugin) recipients(data PluginData) []string {
	out := append([]string(nil), e.to...)
	if e.notifyAssignee && strings.Contains(data.AssignedTo, "@") {
		for _, addr := range out {
			if addr == data.AssignedTo {
				return out
			}
		}
		out = append(out, data.AssignedTo)
	}
	return out
}

// buildSubject 构建邮件主题
func buildSubject(data PluginData) string {
	switch data.Event {
	case events.EventStageHandoff:
		return fmt.Sprintf("[阶段交接] Task %s 进入第%d阶段", data.TaskID, data.Stage)
	case events.EventWorkflowCompleted:
		return fmt.Sprintf("[工作流完成] %s - Task %s", data.WorkflowID, data.TaskID)
	case events.EventTaskRevisionRequired:
		return fmt.Sprintf("[需要返工] Task %s", data.TaskID)
	case events.EventTaskOverdue:
		title := stringField(data.Data, "title")
		if title == "" {
			title = data.TaskID
		}
		return fmt.Sprintf("[任务逾期] %s", title)
	default:
		return fmt.Sprintf("[系统通知] %s", data.Event)
	}
}

// buildBody 构建邮件正文，负载字段按名称排序输出
func buildBody(data PluginData) string {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("事件类型: %s\n", data.Event))
	if data.Status != "" {
		body.WriteString(fmt.Sprintf("状态: %s\n", data.Status))
	}
	if data.WorkflowID != "" {
		body.WriteString(fmt.Sprintf("Workflow ID: %s\n", data.WorkflowID))
	}
	if data.TaskID != "" {
		body.WriteString(fmt.Sprintf("Task ID: %s\n", data.TaskID))
	}
	if data.AssignedTo != "" {
		body.WriteString(fmt.Sprintf("执行人: %s\n", data.AssignedTo))
	}
	if len(data.Data) > 0 {
		keys := make([]string, 0, len(data.Data))
		for k := range data.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		body.WriteString("\n详细信息:\n")
		for _, k := range keys {
			body.WriteString(fmt.Sprintf("  %s: %v\n", k, data.Data[k]))
		}
	}
	return body.String()
}

// sendEmail 发送邮件
func (e *EmailPlugin) sendEmail(to []string, subject, body string) error {
	message := []byte(e.buildMessage(to, subject, body))
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
		// 465端口需要先建立TLS连接
		if e.smtpPort == 465 {
			return e.sendEmailTLS(addr, auth, to, message)
		}
	}
	return e.send(addr, auth, e.from, to, message)
}

// sendEmailTLS 通过TLS发送邮件（用于465端口）
func (e *EmailPlugin) sendEmailTLS(addr string, auth smtp.Auth, to []string, message []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP认证失败: %w", err)
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}
	return client.Quit()
}

// buildMessage 构建邮件消息
func (e *EmailPlugin) buildMessage(to []string, subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
