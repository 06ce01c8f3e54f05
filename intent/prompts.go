package intent

const classifyPrompt = `分析用户消息的类型，只输出一个JSON对象：
{"type": "question|statement|command|personal_info", "confidence": 0.0-1.0, "reasoning": "判断理由"}

类型定义：
- question: 询问、疑问句
- statement: 陈述、观点表达
- command: 指令、要求（例如“帮我写一段代码”）
- personal_info: 个人信息分享（姓名、年龄、职业、住址、爱好、家庭等，例如“我叫小明，我喜欢爬山”）

消息同时包含陈述与个人信息时，选择 personal_info。`

const retrievePrompt = `判断这个问题是否需要历史上下文，只输出一个JSON对象：
{"retrieve": true|false, "reasoning": "判断理由"}

需要检索的情况：
- 使用指代词（那个、这个、它等）
- 提到时间延续（继续、接着、上次、之前等）
- 明确要求回忆或询问历史信息（我说过什么、我的爱好是什么）

不需要检索的情况：
- 独立完整的事实性或常识性问题
- 首次提到的新话题`

const storePrompt = `判断这个陈述是否值得长期存储，只输出一个JSON对象：
{"store": true|false, "reasoning": "判断理由"}

值得存储的情况：
- 表达偏好或观点
- 重要决定或计划
- 有参考价值、可复用的事实
- 情绪状态
- 用户提供的具体数据

不值得存储的情况：
- 确认、寒暄、语气词（好的、嗯、谢谢）
- 重复或过于笼统的内容`
