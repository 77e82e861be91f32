package detector

const detectPrompt = `Analyze the relationships between this NEW FACT and the EXISTING FACTS below.

NEW FACT: %s

EXISTING FACTS:
%s

For each existing fact, determine if the new fact:
- SUPPORTS it (provides evidence for, confirms, reinforces)
- CONTRADICTS it (opposes, disproves, conflicts with)
- NEUTRAL (no clear relationship)

Respond ONLY with a JSON array, no markdown. Each element:
- "fact_id": the ID of the existing fact
- "relationship": "supports", "contradicts", or "neutral"
- "confidence": a float between 0.0 and 1.0
- "reasoning": brief explanation

Only include relationships with confidence above 0.3. If no significant
relationships exist, respond with an empty array: []`
