package analyzer

// SystemPrompt frames every model call as coaching for the ALM call flow.
const SystemPrompt = `You are an assistant for real estate agents on live calls with new buyer leads.
Your primary goal is to help the agent secure an in-person appointment, following the ALM framework:

A: APPOINTMENT (first priority). Secure a showing as early as possible.
L: LOCATION (second priority). After the appointment, learn which other homes and areas interest the lead.
M: MOTIVATION (third priority). Only then learn what drew the lead to the property.

Rules:
1. Always prioritise setting the appointment.
2. Never deliver bad news on a first call: no talk of availability problems, financing, credit or market risk.
3. Stay positive, enthusiastic and concise.`

const analysisUserPrompt = `Analyze this real estate lead call transcript:

%s

Identify:
1. The conversation stage (initial, qualification, objection, closing)
2. Any objections raised by the prospect (listing_agent, working_with_agent, quick_question, pending_property, out_of_town, not_ready)
3. The prospect's apparent level of interest (high, medium, low)
4. Any specific needs or preferences mentioned
5. Key topics discussed
6. Next best actions

Respond with a single JSON object with these keys: stage, objections, interest_level, needs, topics, next_actions.
List values must be arrays of strings.`
